package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/chat-screen/internal/tui"
	"github.com/spf13/cobra"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the chat screen in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			if logPath == "" {
				cfgDir, err := os.UserConfigDir()
				if err != nil {
					return fmt.Errorf("error getting user config dir: %w", err)
				}
				logPath = filepath.Join(cfgDir, "chatscreen", "tui.log")
			}
			if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
				return fmt.Errorf("error creating log directory: %w", err)
			}
			// The terminal belongs to the screen, so diagnostics go to a file
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("error opening log file: %w", err)
			}
			defer logFile.Close()

			logger, err := newLogger(cfg, logFile)
			if err != nil {
				return err
			}

			deps, err := newScreenDeps(cmd.Context(), cfg, logger, "tui")
			if err != nil {
				return err
			}
			defer func() {
				if err := deps.close(); err != nil {
					logger.Error("Failed to close archive", slog.String("err", err.Error()))
				}
			}()

			return tui.Run(cmd.Context(), tui.Config{
				Replier:   deps.replier,
				Archive:   deps.archive,
				SessionID: deps.sessionID,
				Logger:    logger,
			})
		},
	}
	cmd.Flags().StringVar(&logPath, "log-file", "", "file receiving diagnostics (default: user config dir)")

	return cmd
}
