package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/engine"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/pipeline"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a translation worker",
	Long: `Run a worker process: claim tasks from the queue, transcribe and
translate their audio through the configured engine backends and store
the results. A signal drains in-flight tasks before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		engines, err := engine.FromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to configure engines: %v", err)
		}

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

		runner := pipeline.NewRunner(engines.STT, engines.MT, cfg.WERThreshold)
		w := worker.New(cfg, st, repo, disp, res, runner, engines)
		fmt.Printf("✓ Worker %s ready (threads: %d, batch: %d)\n",
			w.ID(), cfg.WorkerMaxThreads, cfg.WorkerBatchSize)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop.")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Run(ctx)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case <-sigCh:
			fmt.Println("\nDraining in-flight tasks...")
			w.Stop()
			runErr = <-errCh
		case runErr = <-errCh:
			if runErr != nil {
				fmt.Fprintf(os.Stderr, "\nWorker error: %v\n", runErr)
			}
		}

		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Store close error: %v\n", err)
		}
		fmt.Println("✓ Shutdown complete")
		return runErr
	},
}

func init() {
	workerCmd.Flags().String("config", "", "Path to YAML configuration file")
}
