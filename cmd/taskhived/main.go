// Command taskhived is the Taskhive server daemon. It serves the REST
// API, publishes task events over MQTT, and runs the periodic reminder
// scheduler.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/taskhive/taskhive/ai"
	"github.com/taskhive/taskhive/config"
	"github.com/taskhive/taskhive/internal/version"
	"github.com/taskhive/taskhive/mail"
	"github.com/taskhive/taskhive/provider"
	"github.com/taskhive/taskhive/pubsub"
	"github.com/taskhive/taskhive/scheduler"
	"github.com/taskhive/taskhive/server"
	"github.com/taskhive/taskhive/store"
)

var configPath = flag.String("config", "taskhive.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting taskhived",
		"version", version.Version,
		"commit", version.Commit,
	)

	storeClient := store.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.ServiceKey, logger)
	tasks := store.NewTasks(storeClient)

	assistant := ai.New(buildProvider(cfg.AI, logger), logger)

	mailer := mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Email, cfg.SMTP.Password, logger)

	publisher := pubsub.NewMQTTPublisher(pubsub.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		Port:        cfg.MQTT.Port,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	publisher.Connect()

	sched := scheduler.New(tasks, storeClient, mailer, scheduler.Config{
		Interval:    time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute,
		FetchLimit:  cfg.Scheduler.FetchLimit,
		MaxSentKeys: cfg.Scheduler.MaxSentKeys,
	}, logger)
	sched.Start()

	srv := server.New(*cfg, version.Version, logger)
	srv.SetStore(storeClient)
	srv.SetAssistant(assistant)
	srv.SetMailer(mailer)
	srv.SetPublisher(publisher)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server exited", "error", err)
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	publisher.Disconnect()
	logger.Info("shutdown complete")
}

// buildProvider selects the configured LLM backend. Returns nil when no
// API key is available, which disables the AI endpoints.
func buildProvider(cfg config.AIConfig, logger *slog.Logger) provider.Provider {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("openai selected but no API key configured, AI features disabled")
			return nil
		}
		return provider.NewOpenAIProvider(cfg.OpenAIAPIKey, "", cfg.Model)
	case "mock":
		return &provider.MockProvider{Response: "mock response"}
	default:
		if cfg.AnthropicAPIKey == "" {
			logger.Warn("anthropic selected but no API key configured, AI features disabled")
			return nil
		}
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.Model,
		})
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
