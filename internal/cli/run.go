package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/hybridsolver/internal/app"
	"github.com/harun/hybridsolver/pkg/session"
	"github.com/spf13/cobra"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Solve a quiz chain in the foreground",
	Long: `Solve the quiz chain starting at url, retry wrong questions, and print
the final summary. Interrupting the command stops the run and prints what
was recorded so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	solver, err := app.New(ctx, cfg, log.Zerolog())
	if err != nil {
		return err
	}
	defer solver.Close(context.Background())

	summary, runErr := solver.Runner().Run(ctx, args[0])
	if err := printSummary(cmd.OutOrStdout(), summary, runJSON); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func printSummary(w io.Writer, s session.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "Correct: %d\n", s.Correct)
	fmt.Fprintf(w, "Wrong:   %d\n", s.Wrong)
	fmt.Fprintf(w, "Total:   %d\n", s.Total)
	for _, u := range s.WrongURLs {
		fmt.Fprintf(w, "  wrong: %s\n", u)
	}
	return nil
}
