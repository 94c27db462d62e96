package main

import (
	"fmt"
	"io"

	"github.com/MegaGrindStone/chat-screen/internal/services"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Print archived transcripts, newest session first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Archive == "" {
				return fmt.Errorf("no archive configured, set archive in config.yaml or CHATSCREEN_ARCHIVE")
			}

			boltDB, err := services.NewBoltDB(cfg.Archive)
			if err != nil {
				return err
			}
			defer boltDB.Close()

			var only string
			if len(args) == 1 {
				only = args[0]
			}
			return printHistory(cmd, boltDB, only, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of sessions to print, 0 for all")

	return cmd
}

func printHistory(cmd *cobra.Command, boltDB services.BoltDB, only string, limit int) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	sessions, err := boltDB.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("error reading sessions: %w", err)
	}

	printed := 0
	for _, s := range sessions {
		if only != "" && s.ID != only {
			continue
		}
		if limit > 0 && printed == limit {
			break
		}
		printed++

		entries, err := boltDB.Entries(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("error reading session %s: %w", s.ID, err)
		}

		fmt.Fprintf(w, "== %s  %s  %s\n", s.ID, s.Title, s.StartedAt.Format("2006-01-02 15:04:05"))
		for _, e := range entries {
			writeEntry(w, e.Speaker, e.Message)
		}
		fmt.Fprintln(w)
	}

	if only != "" && printed == 0 {
		return fmt.Errorf("session %s not found", only)
	}
	return nil
}

func writeEntry(w io.Writer, speaker, message string) {
	fmt.Fprintf(w, "%s: %s\n", speaker, message)
}
