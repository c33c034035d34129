// Package server exposes the answerer over HTTP for an external chat UI.
package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Server struct {
	listenAddr string
	app        *fiber.App
}

// NewApp wires the routes around a.
func NewApp(a Answerer) *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          ErrorHandler,
			DisableStartupMessage: true,
		})
		checkHandler  = NewCheckHandler()
		answerHandler = NewAnswerHandler(a)
		apiv1         = app.Group("/api/v1", requestID)
	)

	app.Get("/healthz", checkHandler.HandleHealthy)
	apiv1.Post("/answer", answerHandler.HandleAnswer)
	return app
}

func NewServer(addr string, a Answerer) *Server {
	return &Server{listenAddr: addr, app: NewApp(a)}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.listenAddr).Msg("Server listening")
		errc <- s.app.Listen(s.listenAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info().Msg("Server stopping")
		return s.app.Shutdown()
	}
}
