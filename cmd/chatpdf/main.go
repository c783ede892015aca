package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatpdf/internal/bootstrap"
	"chatpdf/internal/config"
	"chatpdf/internal/pkg/jwtutil"
	"chatpdf/internal/pkg/logger"
	httptransport "chatpdf/internal/transport/http"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "chatpdf",
		Short:         "Chat with uploaded PDF documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: $CONFIG_FILE or configs/config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(webhookTokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	if configPath != "" {
		if err := os.Setenv("CONFIG_FILE", configPath); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With("app", cfg.App.Name)
	slog.SetDefault(log)
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the ingest worker when rabbitmq.embedded_worker is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("bootstrap failed: %w", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Error("close resources failed", "error", err)
				}
			}()

			if cfg.RabbitMQ.EmbeddedWorker {
				if err := app.IngestWorker.Start(ctx); err != nil {
					return fmt.Errorf("start ingest worker failed: %w", err)
				}
			}

			server := &http.Server{
				Addr:              cfg.HTTPAddr(),
				Handler:           httptransport.NewRouter(app),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("server starting", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}
			waitForShutdown(server, log)
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the ingest worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("bootstrap failed: %w", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Error("close resources failed", "error", err)
				}
			}()

			if err := app.IngestWorker.Start(ctx); err != nil {
				return fmt.Errorf("start ingest worker failed: %w", err)
			}
			<-ctx.Done()
			log.Info("worker shutting down")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			log.Info("schema migrated", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func webhookTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "webhook-token",
		Short: "Print a bearer token for the upload-complete webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Webhook.Secret == "" {
				return errors.New("webhook.secret is not configured")
			}
			token, err := jwtutil.GenerateToken(cfg.Webhook.Secret, jwtutil.SubjectUploadWebhook, cfg.App.Name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 never expires)")
	return cmd
}

func waitForShutdown(server *http.Server, log *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
