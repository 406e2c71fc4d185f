package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/channels"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/config"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/digest"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/llm"
	otelPkg "github.com/svetasakovets-dev/telegram-summarizer-bot/internal/otel"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/summarize"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	// Secrets may live in a local .env; real environment wins.
	_ = godotenv.Load()

	homeFlag := flag.String("home", "", "bot home directory (default: $SUMMARIZER_HOME or ~/.tg-summarizer)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("telegram-summarizer-bot", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	homeDir := *homeFlag
	if homeDir == "" {
		homeDir = config.HomeDir()
	}

	cfg, err := config.LoadFrom(homeDir)
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "version", Version, "home", cfg.HomeDir)

	if cfg.Telegram.Token == "" {
		fatalStartup(logger, "E_MISSING_TOKEN", errors.New("telegram.token (or TELEGRAM_BOT_TOKEN) is required"))
	}
	if cfg.LLM.APIKey == "" {
		fatalStartup(logger, "E_MISSING_API_KEY", errors.New("llm.api_key (or GROQ_API_KEY) is required"))
	}

	otelProvider, err := otelPkg.Init(ctx, cfg.Otel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	buffers := store.NewMemory()
	subs := store.NewSubscriptions()

	completer := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	logger.Info("completion client ready", "model", completer.Model())

	prompts := summarize.NewPromptSet(summarize.Profile(cfg.Summary.Profile))
	if applied := prompts.LoadOverrides(cfg.HomeDir); len(applied) > 0 {
		logger.Info("prompt overrides applied", "files", applied)
	}
	startPromptReload(ctx, cfg.HomeDir, prompts, logger)

	service := summarize.NewService(buffers, completer, prompts, summarize.Config{
		ChunkCeiling:       cfg.Summary.ChunkCeiling,
		MaxParallel:        cfg.Summary.MaxParallel,
		RunTimeout:         cfg.RunTimeout(),
		PartialTemperature: cfg.Summary.PartialTemperature,
		PartialMaxTokens:   cfg.Summary.PartialMaxTokens,
		FinalTemperature:   cfg.Summary.FinalTemperature,
		FinalMaxTokens:     cfg.Summary.FinalMaxTokens,
	}, logger, metrics, otelProvider.Tracer)

	channel := channels.NewTelegramChannel(channels.TelegramConfig{
		Token:          cfg.Telegram.Token,
		AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
		WebhookURL:     cfg.Telegram.WebhookURL,
		WebhookSecret:  cfg.Telegram.WebhookSecret,
		ListenAddr:     cfg.Telegram.ListenAddr,
		RunTimeout:     cfg.RunTimeout(),
	}, buffers, subs, service, logger, metrics)

	scheduler, err := digest.NewScheduler(digest.Config{
		Schedule:      cfg.Digest.Schedule,
		Window:        cfg.DigestWindow(),
		RunTimeout:    cfg.RunTimeout(),
		Subscriptions: subs,
		Producer:      service,
		Sender:        channel,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		fatalStartup(logger, "E_SCHEDULE_PARSE", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("startup phase", "phase", "ready", "channel", channel.Name())
	if err := channel.Start(ctx); err != nil {
		fatalStartup(logger, "E_CHANNEL_START", err)
	}
	logger.Info("shutdown complete")
}

// startPromptReload watches the prompt override files and re-applies them
// on change.
func startPromptReload(ctx context.Context, homeDir string, prompts *summarize.PromptSet, logger *slog.Logger) {
	watcher := config.NewWatcher(homeDir, []string{
		summarize.PartialOverrideFile,
		summarize.FusionOverrideFile,
	}, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("prompt override watcher unavailable", "error", err)
		return
	}
	go func() {
		for ev := range watcher.Events() {
			applied := prompts.LoadOverrides(homeDir)
			logger.Info("prompt overrides reloaded",
				"trigger", filepath.Base(ev.Path), "files", applied)
		}
	}()
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}
