package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CTAG07/babbler/pkg/markov"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the model over an HTTP API",
		Long: `Start the HTTP API. The model file is loaded at startup and, when
server.watch_model is set, reloaded whenever it changes on disk.

The server can be restarted or shut down through the API; a restart
re-reads the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

// serve runs server cycles until a shutdown is requested.
func serve() error {
	baseLogger := newLogger("info")
	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(actionChan)
		if err != nil {
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Babbler has shut down.")
	return nil
}

// run hosts one server cycle and returns whenever the server is shut down or
// restarted.
func run(actionChan chan string) (string, error) {
	cm, err := NewConfigManager(flags.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()
	if flags.modelPath != "" {
		config.Server.ModelPath = flags.modelPath
	}

	logger := newLogger(config.Server.LogLevel)
	logger.Info("Starting server cycle...")

	db, err := openDatabase(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	chain, err := markov.NewChain(markov.WithOrder(config.Model.Order))
	if err != nil {
		return "", err
	}
	chain.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = chain.LoadFile(ctx, config.Server.ModelPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to load model: %w", err)
		}
		logger.Warn("No model file found, train or import one to start generating", "path", config.Server.ModelPath)
	}

	if config.Server.WatchModel {
		debounce := time.Duration(config.Server.ReloadDebounceMs) * time.Millisecond
		watcher, err := newModelWatcher(config.Server.ModelPath, chain, debounce, logger)
		if err != nil {
			logger.Warn("Model hot reload disabled", "error", err)
		} else {
			defer func() { _ = watcher.Close() }()
			go watcher.Run(ctx)
		}
	}

	server, err := NewServer(cm, logger, db, chain, actionChan)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close()
	if flags.modelPath != "" {
		server.SetModelPath(flags.modelPath)
	}

	httpServer := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting babbler API server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", "error", err)
			actionChan <- actionShutdown
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	return action, nil
}
