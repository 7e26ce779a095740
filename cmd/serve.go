package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell/backend/api"
	"github.com/inkwell-ai/inkwell/backend/chat"
	"github.com/inkwell-ai/inkwell/backend/composer"
	"github.com/inkwell-ai/inkwell/backend/embed"
	"github.com/inkwell-ai/inkwell/backend/event"
	"github.com/inkwell-ai/inkwell/backend/model"
	"github.com/inkwell-ai/inkwell/backend/tool"
	"github.com/inkwell-ai/inkwell/shared/config"
)

type serveOptions struct {
	ListenAddr string
}

func NewServeCmd() *cobra.Command {
	options := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server as a persistent service",
		Long: `Starts the HTTP server that backs the writing assistant: the chat
stream, the composer, the embedding store, and the client log sinks.

Credentials are read from the environment (optionally via a .env file).
A missing provider key leaves that provider's models unavailable rather
than preventing startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if options.ListenAddr != "" {
				settings.ListenAddr = options.ListenAddr
			}
			if err := settings.Validate(); err != nil {
				slog.Warn("running with incomplete configuration", "error", err)
			}

			return runServer(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&options.ListenAddr, "listen", "", "address to listen on for HTTP requests")

	return cmd
}

func runServer(ctx context.Context, settings *config.Settings) error {
	metrics := prometheus.NewRegistry()

	bus := event.NewBus(metrics)
	defer bus.Close()
	observeTurns(bus)

	registry, err := model.NewRegistry(settings)
	if err != nil {
		return fmt.Errorf("failed to build model registry: %w", err)
	}

	store, err := embed.OpenStore(settings.VectorDBPath)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	var searchService *embed.Service
	if embedder, err := registry.Embedder(); err != nil {
		slog.Warn("file search disabled", "error", err)
	} else {
		searchService = embed.NewService(embedder, store)
	}

	deps := tool.Deps{
		Search:      searchService,
		RapidAPIKey: settings.RapidAPIKey,
	}
	if binding, err := registry.Lookup(string(model.ModelOpenAI)); err == nil {
		deps.Notes = binding.Provider
		deps.NotesModel = binding.ModelName
	}
	if vision, err := registry.Vision(); err == nil {
		deps.Vision = vision
	}

	driver := chat.NewDriver(registry, bus, deps, slog.Default())
	compose := composer.NewComposer(registry, slog.Default())

	server := api.NewServer(settings.ListenAddr, api.ServerOptions{
		Driver:   driver,
		Composer: compose,
		Embed:    searchService,
		Metrics:  metrics,
		Logger:   slog.Default(),
	})

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", settings.ListenAddr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// observeTurns forwards chat lifecycle events into the structured log.
func observeTurns(bus *event.Bus) {
	event.Subscribe(bus, func(ctx context.Context, e event.TurnStartedEvent) {
		slog.InfoContext(ctx, "turn started",
			"request_id", e.RequestID, "tool", e.Tool, "model", e.Model, "messages", e.Messages)
	}, nil)

	event.Subscribe(bus, func(ctx context.Context, e event.ToolResultEvent) {
		slog.InfoContext(ctx, "tool finished",
			"request_id", e.RequestID, "tool", e.Tool, "round", e.Round,
			"succeeded", e.Succeeded, "duration_ms", e.Duration.Milliseconds())
	}, nil)

	event.Subscribe(bus, func(ctx context.Context, e event.StreamFinishedEvent) {
		slog.InfoContext(ctx, "stream finished",
			"request_id", e.RequestID, "chunks", e.Chunks, "duration_ms", e.Duration.Milliseconds())
	}, nil)

	event.Subscribe(bus, func(ctx context.Context, e event.TurnFailedEvent) {
		slog.ErrorContext(ctx, "turn failed",
			"request_id", e.RequestID, "error_type", e.ErrorType, "error_id", e.ErrorID)
	}, nil)
}
