package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/printforge/dispatch/internal/api"
	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/core"
	"github.com/printforge/dispatch/internal/db"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "Print-job dispatch service",
	Long:  "dispatchd routes paid print orders to physical-printer backends,\nretrying failed deliveries until the backends come back.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, retry queue and admin API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults to environment variables)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.LoadFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	client := core.NewClient(cfg.Dispatch)
	retryQueue := core.NewRetryQueue(cfg.RetryQueue, client)
	client.SetRetrySink(retryQueue)
	scheduler := core.NewScheduler(store, client, cfg.Scheduler, cfg.Database.RetentionDays)

	if client.Selector().Count() == 0 {
		log.Printf("[dispatchd] warning: no printer endpoints configured, dispatches will queue until they are")
	}

	retryQueue.Start()
	scheduler.Start()

	router := api.NewRouter(cfg, store, client, scheduler, retryQueue)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[dispatchd] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		scheduler.Stop()
		retryQueue.Stop()
		return err
	case sig := <-sigCh:
		log.Printf("[dispatchd] received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[dispatchd] server shutdown: %v", err)
	}

	scheduler.Stop()
	retryQueue.Stop()
	return nil
}
