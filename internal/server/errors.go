package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"edubot/internal/models"
)

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Kind:    "BadRequest",
		Message: "invalid JSON request",
	}
}

func statusOf(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidQuery:
		return fiber.StatusBadRequest
	case models.KindIndexUnavailable:
		return fiber.StatusServiceUnavailable
	case models.KindGenerationError:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler turns handler errors into structured JSON responses.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var apiErr Error
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &fiberErr):
		apiErr = Error{Code: fiberErr.Code, Kind: "HTTPError", Message: fiberErr.Message}
	default:
		kind := models.KindOf(err)
		apiErr = Error{Code: statusOf(kind), Kind: string(kind), Message: err.Error()}
	}

	log.Warn().
		Interface("request_id", c.Locals(requestIDKey)).
		Str("kind", apiErr.Kind).
		Int("status", apiErr.Code).
		Str("path", c.Path()).
		Msg(apiErr.Message)
	return c.Status(apiErr.Code).JSON(apiErr)
}
