package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatscreen "github.com/MegaGrindStone/chat-screen"
	"github.com/MegaGrindStone/chat-screen/internal/handlers"
	"github.com/spf13/cobra"
)

func newWebCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the chat screen to browsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serveWeb(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides config)")

	return cmd
}

func serveWeb(ctx context.Context, cfg config) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	deps, err := newScreenDeps(ctx, cfg, logger, "web")
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.Error("Failed to close archive", slog.String("err", err.Error()))
		}
	}()

	m, err := handlers.NewMain(handlers.Config{
		Replier:   deps.replier,
		Archive:   deps.archive,
		SessionID: deps.sessionID,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Routes(chatscreen.StaticFS),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}

	return nil
}
