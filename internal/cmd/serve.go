package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claudebridge/channel"
	"github.com/randalmurphal/claudebridge/config"
	"github.com/randalmurphal/claudebridge/mcpconfig"
	"github.com/randalmurphal/claudebridge/supervisor"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		backend    string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept websocket clients and run their Claude sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if backend != "" {
				cfg.Backend = backend
			}
			if model != "" {
				cfg.Claude.Model = model
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, ln, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&backend, "backend", "", "Default backend: cli or query (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "Default model (overrides config)")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.LoadFromEnv()
	return cfg, nil
}

// serve runs the bridge on ln until ctx is cancelled, then aborts every
// live session and waits for their teardown.
func serve(ctx context.Context, cfg config.Config, ln net.Listener, log *slog.Logger) error {
	argv, err := cfg.CommandArgs()
	if err != nil {
		return err
	}

	supOpts := []supervisor.Option{
		supervisor.WithDefaults(supervisor.Defaults{
			Command: argv,
			Model:   cfg.Claude.Model,
			WorkDir: cfg.Claude.WorkDir,
			Backend: cfg.Backend,
		}),
		supervisor.WithSandboxDir(cfg.Sandbox.Dir),
		supervisor.WithAbortGrace(cfg.AbortGrace),
		supervisor.WithLogger(log),
	}
	if !cfg.Claude.DisableMCP {
		w := mcpconfig.NewWatcher(cfg.Claude.MCPConfigPath, mcpconfig.WithLogger(log))
		defer w.Close()
		supOpts = append(supOpts, supervisor.WithMCPResolver(w))
	}
	sup := supervisor.New(supOpts...)

	h, err := channel.NewHandler(sup,
		channel.WithAllowedOrigins(cfg.AllowedOrigins...),
		channel.WithLogger(log),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": len(sup.Sessions()),
		})
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", ln.Addr().String(), "backend", cfg.Backend)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = sup.Shutdown(context.Background())
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("sessions did not stop: %w", err)
	}
	return nil
}
