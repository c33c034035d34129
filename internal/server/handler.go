package server

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"edubot/internal/helper"
	"edubot/internal/models"
)

const requestIDKey = "request_id"

var validate = validator.New()

// Answerer is the part of rag.RAG the HTTP layer needs.
type Answerer interface {
	Answer(ctx context.Context, query string) (*models.Answer, error)
}

type AnswerRequest struct {
	Query string `json:"query" validate:"required"`
}

// Validate returns the failed fields, or nil.
func (r *AnswerRequest) Validate() map[string]string {
	if err := validate.Struct(r); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type AnswerResponse struct {
	RequestID string               `json:"request_id"`
	Result    string               `json:"result"`
	Sources   []models.ScoredChunk `json:"sources"`
}

type AnswerHandler struct {
	answerer Answerer
}

func NewAnswerHandler(a Answerer) *AnswerHandler {
	return &AnswerHandler{answerer: a}
}

func (h *AnswerHandler) HandleAnswer(c *fiber.Ctx) error {
	var req AnswerRequest
	if c.BodyParser(&req) != nil {
		return ErrBadRequest()
	}
	if errs := req.Validate(); len(errs) > 0 {
		return NewValidationError(errs)
	}

	ans, err := h.answerer.Answer(c.UserContext(), req.Query)
	if err != nil {
		return err
	}

	id, _ := c.Locals(requestIDKey).(string)
	log.Info().Str("request_id", id).Int("sources", len(ans.Sources)).Msg("Answered")
	return c.JSON(AnswerResponse{RequestID: id, Result: ans.Result, Sources: ans.Sources})
}

type CheckHandler struct{}

func NewCheckHandler() *CheckHandler {
	return &CheckHandler{}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// requestID tags each request with a fresh UUID.
func requestID(c *fiber.Ctx) error {
	id, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	c.Locals(requestIDKey, id)
	c.Set("X-Request-ID", id)
	return c.Next()
}
