package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/clients"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/spf13/cobra"
)

const defaultAddr = "http://localhost:8080"

var actionDescriptions = map[string]string{
	"start":  "Starts a round's countdown. No effect if running or finished.",
	"pause":  "Pauses a running countdown",
	"resume": "Resumes a paused countdown",
	"stop":   "Stops a countdown, keeping the remaining time",
	"reset":  "Stops a countdown and restores its full duration",
}

// newRootCmd builds the command tree; tests build a fresh one per run.
func newRootCmd() *cobra.Command {
	var addr string

	rootCmd := &cobra.Command{
		Use:           "quizctl",
		Short:         "Controls quizclock round countdowns",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", envOr("QUIZCLOCK_ADDR", defaultAddr), "quizclock server URL")

	client := func() *clients.QuizClockClient {
		return clients.NewQuizClockClient(addr)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists open rounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client().ListRounds(cmd.Context())
			if err != nil {
				return err
			}
			return printRounds(cmd.OutOrStdout(), list...)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "state <round-id>",
		Short: "Shows a round's countdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roundID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid round id: %w", err)
			}
			snap, err := client().RoundState(cmd.Context(), roundID)
			if err != nil {
				return err
			}
			return printRounds(cmd.OutOrStdout(), *snap)
		},
	})

	for _, action := range clients.Actions {
		rootCmd.AddCommand(&cobra.Command{
			Use:   action + " <round-id>",
			Short: actionDescriptions[action],
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				roundID, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid round id: %w", err)
				}
				snap, err := client().Control(cmd.Context(), roundID, action)
				if err != nil {
					return err
				}
				return printRounds(cmd.OutOrStdout(), *snap)
			},
		})
	}

	return rootCmd
}

func printRounds(out io.Writer, list ...rounds.RoundSnapshot) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tREMAINING")
	for _, snap := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", snap.RoundID, snap.Name, snap.State, formatClock(snap.RemainingSec))
	}
	return w.Flush()
}

// formatClock renders seconds as m:ss, the way quiz pages show them.
func formatClock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
