// Package api exposes character lookup and passage search over HTTP.
package api

import (
	"context"
	"log"
	"time"

	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/gofiber/fiber/v2"
)

// NewApp builds the fiber application serving pipeline.
func NewApp(pipeline *orchestrator.Pipeline) *fiber.App {
	var (
		app              = fiber.New(fiber.Config{ErrorHandler: ErrorHandler, DisableStartupMessage: true})
		checkHandler     = NewCheckHandler()
		characterHandler = NewCharacterHandler(pipeline)
		apiv1            = app.Group("/api")
	)

	app.Get("/healthz", checkHandler.HandleHealthy)
	apiv1.Get("/search", characterHandler.HandleSearch)
	apiv1.Post("/characters", characterHandler.HandleGetCharacter)

	return app
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, pipeline *orchestrator.Pipeline) error {
	app := NewApp(pipeline)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Listening on %s", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("[API] Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}
