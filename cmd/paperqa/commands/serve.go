package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/logging"
	"github.com/54b3r/paperqa-go/internal/server"
	"github.com/54b3r/paperqa-go/internal/tracing"
	"github.com/54b3r/paperqa-go/internal/version"
)

// NewServeCmd constructs the `paperqa serve` command, which starts the HTTP
// API and the web UI.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question-answering HTTP server and web UI",
		Long: `Start the paperqa HTTP server.

The index must have been built with the same embedding model that is
configured now; otherwise the server refuses to start.

Examples:
  paperqa serve
  paperqa serve --host 0.0.0.0 --port 9000
  MODEL_PROVIDER=ollama paperqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				s.ServerHost = host
			}
			if cmd.Flags().Changed("port") {
				s.ServerPort = port
			}

			if flush, ok := tracing.SetupLangfuse(tracing.LangfuseFromEnv()); ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}
			shutdownTracing, err := tracing.SetupOTel(ctx, tracing.OTelFromEnv(version.Version))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(sctx); err != nil {
					log.Warn("tracing shutdown failed", slog.Any("error", err))
				}
			}()

			q, err := buildQueryStack(ctx, s, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer q.Close()

			if n, err := q.store.Count(ctx); err == nil {
				log.Info("index opened", slog.Int("chunks", n), slog.String("collection", s.Collection))
			}

			srv, err := server.New(q.service, q.store, &server.Config{
				Host:       s.ServerHost,
				Port:       s.ServerPort,
				AskTimeout: s.AskTimeout,
				Logger:     log,
				Pingers:    q.pingers,
				RateLimit:  s.RateLimit,
				RateBurst:  s.RateBurst,
				APIKey:     s.APIKey,
				Version:    version.Version,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides PAPERQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (overrides PAPERQA_PORT)")

	return cmd
}
