package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harun/hybridsolver/pkg/httpclient"
	"github.com/harun/hybridsolver/pkg/server"
	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long:  `Query a running hybridsolver server for its health and last run.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://127.0.0.1:8000", "server base URL")
	rootCmd.AddCommand(statusCmd)
}

type health struct {
	Status        string `json:"status"`
	UptimeSeconds int    `json:"uptime_seconds"`
	Email         string `json:"email"`
	Version       string `json:"version"`
	Running       bool   `json:"running"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second, MaxAttempts: 1})
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return printStatus(ctx, cmd.OutOrStdout(), client, strings.TrimRight(statusAddr, "/"))
}

func printStatus(ctx context.Context, w io.Writer, client *httpclient.Client, base string) error {
	resp, err := client.GetWithRetry(ctx, base+"/healthz")
	if err != nil {
		if httpclient.IsTransient(err) {
			fmt.Fprintln(w, "Status: stopped")
			return nil
		}
		return fmt.Errorf("failed to query server: %w", err)
	}

	var h health
	if err := resp.JSON(&h); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}
	fmt.Fprintf(w, "Status: %s\n", h.Status)
	fmt.Fprintf(w, "Version: %s\n", h.Version)
	fmt.Fprintf(w, "Uptime: %s\n", formatDuration(time.Duration(h.UptimeSeconds)*time.Second))
	fmt.Fprintf(w, "Email: %s\n", h.Email)

	resp, err = client.GetWithRetry(ctx, base+"/summary")
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		fmt.Fprintln(w, "Last run: none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query summary: %w", err)
	}

	var report server.RunReport
	if err := resp.JSON(&report); err != nil {
		return fmt.Errorf("invalid summary response: %w", err)
	}
	state := "finished"
	if report.Running {
		state = "running"
	}
	fmt.Fprintf(w, "Last run: %s (%s) %s\n", report.JobID, report.URL, state)
	if report.Summary != nil {
		fmt.Fprintf(w, "  correct=%d wrong=%d total=%d\n", report.Summary.Correct, report.Summary.Wrong, report.Summary.Total)
	}
	if report.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", report.Error)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
