package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/hybridsolver/internal/app"
	"github.com/harun/hybridsolver/pkg/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var (
	serveHost       string
	servePort       int
	serveRunTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quiz HTTP server",
	Long: `Start the HTTP front end. POST /quiz with {"url", "secret"} starts a
run in the background; GET /summary reports the last run.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().DurationVar(&serveRunTimeout, "run-timeout", 0, "bound on a single quiz run, 0 for none")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
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

	srv, err := server.New(server.Options{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Email:      cfg.Email,
		Secret:     cfg.Secret,
		Version:    "hybrid-v" + version,
		RunTimeout: serveRunTimeout,
		Logger:     log.Zerolog(),
	}, solver.Runner())
	if err != nil {
		_ = solver.Close(context.Background())
		return err
	}
	if err := srv.Start(); err != nil {
		_ = solver.Close(context.Background())
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", srv.Addr())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := srv.Stop(shutdownCtx)
	closeErr := solver.Close(shutdownCtx)
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
