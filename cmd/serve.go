package cmd

import (
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/chartwise/internal/api"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/engine"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Chartwise server",
	Long:  `Start the Chartwise API server and the background jobs.`,
	Example: `chartwise serve --config config.yml
chartwise serve -c /path/to/config.yml --log-level debug
`,
	Run: startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close() //nolint: errcheck

	engine, err := engine.New(ctx, cfg, db)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close() //nolint: errcheck

	server, err := api.New(cfg, engine, log.GetLevel() == log.DebugLevel)
	if err != nil {
		log.Fatalf("failed to create API server: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting API server", "listen", cfg.Listen)
		return server.Run(ctx)
	})

	log.Info("chartwise started successfully")
	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return
	}
	log.Info("shut down gracefully")
}
