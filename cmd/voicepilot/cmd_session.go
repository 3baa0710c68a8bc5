package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jerhadf/voice-computer-use/internal/state"
	"github.com/jerhadf/voice-computer-use/internal/tui"
	"github.com/jerhadf/voice-computer-use/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionClearCmd)
	sessionShowCmd.Flags().IntVar(&showLimit, "limit", 50, "number of trailing events to show")
}

var showLimit int

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect recorded session transcripts",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		index := state.NewSessionIndexStore(cfg.DataDir)

		list, err := index.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tEVENTS\tCREATED\tUPDATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				s.SessionID,
				s.SessionKey,
				s.Events,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the tail of a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		id := types.SessionID(args[0])
		if _, err := state.NewSessionIndexStore(cfg.DataDir).Get(cmd.Context(), id); err != nil {
			return err
		}
		events, err := state.NewTranscriptStore(cfg.DataDir).Tail(cmd.Context(), id, showLimit)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		for _, ev := range events {
			fmt.Fprintf(os.Stdout, "%4d %s\n", ev.Seq, tui.RenderEvent(ev))
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Delete a session transcript, or all of them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		index := state.NewSessionIndexStore(cfg.DataDir)
		transcripts := state.NewTranscriptStore(cfg.DataDir)
		ctx := cmd.Context()

		if args[0] == "all" {
			list, err := index.List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, s := range list {
				if err := clearSession(ctx, index, transcripts, s.SessionID); err != nil {
					return err
				}
			}
			fmt.Printf("Cleared %d sessions.\n", len(list))
			return nil
		}

		if err := clearSession(ctx, index, transcripts, types.SessionID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}

// clearSession only touches ids present in the index, so arbitrary paths
// are never removed.
func clearSession(ctx context.Context, index *state.SessionIndexStore, transcripts *state.TranscriptStore, id types.SessionID) error {
	if err := index.Remove(ctx, id); err != nil {
		return err
	}
	return transcripts.Clear(ctx, id)
}
