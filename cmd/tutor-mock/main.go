package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/code-tutor/tutor/internal/config"
	"github.com/code-tutor/tutor/internal/logger"
	"github.com/code-tutor/tutor/internal/metrics"
	"github.com/code-tutor/tutor/internal/mockserver"
)

func main() {
	configPath := flag.String("config", "tutor.yaml", "Path to config file")
	host := flag.String("host", "", "Override listen host")
	port := flag.Int("port", 0, "Override listen port")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Mock.Host = *host
	}
	if *port > 0 {
		cfg.Mock.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
		Prefix: "tutor-mock",
		Stdout: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.ListenAndServe(cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := mockserver.NewServer(mockserver.Options{
		LineDelay:      cfg.Mock.LineDelay,
		MaxConnections: cfg.Mock.MaxConnections,
		Logger:         logger.Slog(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Mock.Host, cfg.Mock.Port)
	if err := srv.ListenAndServe(ctx, addr); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("shut down")
}
