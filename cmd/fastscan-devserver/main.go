// Command fastscan-devserver runs the FastScan backend API locally.
// Usage: go run ./cmd/fastscan-devserver [-config fastscan.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/fastscan/internal/app"
	"github.com/raysh454/fastscan/internal/backend"
	"github.com/raysh454/fastscan/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to a fastscan.yaml config file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devserver: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Logging, "devserver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "devserver: %v\n", err)
		os.Exit(1)
	}

	bcfg, err := cfg.BackendConfig(logger)
	if err != nil {
		logger.Error("invalid config", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	srv, err := backend.NewServer(bcfg)
	if err != nil {
		logger.Error("failed to start backend", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	defer srv.Close()

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info("listening",
			logging.Field{Key: "addr", Value: httpServer.Addr},
			logging.Field{Key: "docs", Value: "/swagger/index.html"})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", logging.Field{Key: "error", Value: err.Error()})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
}
