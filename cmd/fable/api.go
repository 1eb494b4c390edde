package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taleweave/fable/pkg/api"
	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/engine"
	"github.com/taleweave/fable/pkg/janitor"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/metrics"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/uploads"
	"github.com/taleweave/fable/pkg/worker"
)

const shutdownGrace = 30 * time.Second

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the control API server",
	Long: `Run the control API process: task submission and queries, story
lookups, health endpoints and the Prometheus exposition. The process
also hosts the janitor, the single garbage-collection scheduler of a
deployment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		st, err := store.NewRedisStore(cfg.StoreAddr(), cfg.StorePassword, cfg.StoreDB)
		if err != nil {
			return fmt.Errorf("failed to connect to store: %v", err)
		}
		fmt.Printf("✓ Connected to store at %s\n", cfg.StoreAddr())

		repo := repository.NewTaskRepository(st)
		disp, err := dispatch.New(cmd.Context(), st, repo, cfg)
		if err != nil {
			st.Close()
			return fmt.Errorf("failed to initialize dispatcher: %v", err)
		}
		res, err := results.NewResultStore(st, cfg.ResultDir)
		if err != nil {
			st.Close()
			return fmt.Errorf("failed to initialize result store: %v", err)
		}
		up, err := uploads.NewManager(cfg)
		if err != nil {
			st.Close()
			return fmt.Errorf("failed to initialize upload storage: %v", err)
		}

		jan := janitor.New(cfg, repo, res, disp, up)
		disp.OnCreate(jan.MaybeRun)
		jan.Start()
		fmt.Println("✓ Janitor started")

		registry := worker.NewRegistry(st)
		collector := metrics.NewCollector(repo, registry)
		collector.Start()
		fmt.Println("✓ Metrics collector started")

		server := api.NewServer(cfg, api.Deps{
			Store:      st,
			Repo:       repo,
			Dispatcher: disp,
			Results:    res,
			Uploads:    up,
			Workers:    registry,
			System:     engine.SystemMetrics{},
			Version:    Version,
		})
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.APIAddr())
		}()
		fmt.Printf("✓ API server listening on %s\n", cfg.APIAddr())
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case runErr = <-errCh:
			if runErr != nil {
				fmt.Fprintf(os.Stderr, "\nAPI server error: %v\n", runErr)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		}
		jan.Stop()
		collector.Stop()
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Store close error: %v\n", err)
		}

		fmt.Println("✓ Shutdown complete")
		return runErr
	},
}

func init() {
	apiCmd.Flags().String("config", "", "Path to YAML configuration file")
}
