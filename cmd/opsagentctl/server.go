package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/opsagent/pkg/app"
	"github.com/doodlesbykumbi/opsagent/pkg/config"
	"github.com/doodlesbykumbi/opsagent/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the opsagent application server",
	Long: `Run the opsagent application server.

The server requires DATABASE_URL and credentials for the model provider
(OPENAI_API_KEY). The database pool is opened on start and closed on
shutdown.

By default, database migrations are run on startup. Use --no-migrate to skip.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind-address") {
			cfg.BindAddress, _ = cmd.Flags().GetString("bind-address")
		}
		// Validate first so a missing DATABASE_URL fails fast.
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid logging configuration: %v\n", err)
			os.Exit(1)
		}

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			logger.Info("Running database migrations...")
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
				os.Exit(1)
			}
		}

		if err := runServer(cfg, logger); err != nil {
			logger.Error("Server failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	defaults := config.Default()
	serverCmd.Flags().IntP("port", "p", defaults.Port, "server listen port (overrides PORT)")
	serverCmd.Flags().StringP("bind-address", "b", defaults.BindAddress, "server bind address (overrides BIND_ADDRESS)")
	serverCmd.Flags().Bool("no-migrate", false, "skip running database migrations on start")
}

func runServer(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := app.NewModel(cfg)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, llm, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.WatchSchema(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Server.Shutdown(shutdownCtx)
}
