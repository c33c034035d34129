package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"edubot/internal/cli"
	"edubot/internal/helper"
	"edubot/internal/models"
)

func main() {
	helper.SetupLogger("info", "console", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Str("kind", string(models.KindOf(err))).Msg("edubot failed")
		os.Exit(1)
	}
}
