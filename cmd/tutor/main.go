package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/code-tutor/tutor/internal/app"
	"github.com/code-tutor/tutor/internal/config"
	"github.com/code-tutor/tutor/internal/logger"
	"github.com/code-tutor/tutor/internal/metrics"
	"github.com/code-tutor/tutor/internal/session"
	"github.com/code-tutor/tutor/internal/transport"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "tutor.yaml", "Path to config file")
	wsURL := flag.String("url", "", "Override the execution service WebSocket URL")
	logLevel := flag.String("log-level", "", "Override the log level")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *wsURL != "" {
		cfg.Server.URL = *wsURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs only go to the file.
	if err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
		Prefix: "tutor",
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

	id := uuid.NewString()
	header := http.Header{}
	header.Set(transport.ClientHeader, id)
	dialer := transport.NewWSDialer(transport.Options{
		URL:          cfg.Server.URL,
		Header:       header,
		DialTimeout:  cfg.Transport.DialTimeout,
		WriteTimeout: cfg.Transport.WriteTimeout,
		PongTimeout:  cfg.Transport.PongTimeout,
		PingInterval: cfg.Transport.PingInterval,
	})

	bridge := app.NewBridge(256)
	sess := session.Start(dialer, bridge.Handlers(),
		session.WithID(id),
		session.WithBackoff(cfg.Backoff()),
		session.WithSendBuffer(cfg.Transport.SendBuffer),
		session.WithRateLimit(cfg.Dispatch.Rate, cfg.Dispatch.Burst),
		session.WithLogger(logger.Slog()),
	)

	m := app.New(sess, bridge, id)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	bridge.Stop()
	sess.Close()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
