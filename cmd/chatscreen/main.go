package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
	"github.com/MegaGrindStone/chat-screen/internal/models"
	"github.com/MegaGrindStone/chat-screen/internal/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "chatscreen",
		Short:        "Chat screen that sends what you type to a chat backend and shows the replies",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default: user config dir)")

	root.AddCommand(
		newWebCmd(opts),
		newTUICmd(opts),
		newHistoryCmd(opts),
	)

	return root
}

func (o *rootOptions) load() (config, error) {
	if o.configPath != "" {
		return loadConfig(o.configPath, true)
	}
	path, err := defaultConfigPath()
	if err != nil {
		return config{}, err
	}
	return loadConfig(path, false)
}

func newLogger(cfg config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.logLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// screenDeps are the collaborators shared by every frontend.
type screenDeps struct {
	replier   dialogue.Replier
	archive   dialogue.Archive
	sessionID string

	close func() error
}

// newScreenDeps builds the replier and, if configured, opens the transcript archive and starts a
// session in it named after the frontend.
func newScreenDeps(ctx context.Context, cfg config, logger *slog.Logger, frontend string) (screenDeps, error) {
	replier, err := cfg.Replier.replier(logger)
	if err != nil {
		return screenDeps{}, fmt.Errorf("error creating replier: %w", err)
	}

	deps := screenDeps{
		replier: replier,
		close:   func() error { return nil },
	}
	if cfg.Archive == "" {
		return deps, nil
	}

	boltDB, err := services.NewBoltDB(cfg.Archive)
	if err != nil {
		return screenDeps{}, err
	}

	session := models.Session{
		ID:        uuid.New().String(),
		Title:     frontend,
		StartedAt: time.Now(),
	}
	if err := boltDB.AddSession(ctx, session); err != nil {
		_ = boltDB.Close()
		return screenDeps{}, fmt.Errorf("error starting archive session: %w", err)
	}

	deps.archive = boltDB
	deps.sessionID = session.ID
	deps.close = boltDB.Close

	logger.Info("Archiving transcript", slog.String("path", cfg.Archive), slog.String("session", session.ID))

	return deps, nil
}
