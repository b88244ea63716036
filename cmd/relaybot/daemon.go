package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relaybot/internal/archive"
	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/history"
	"relaybot/internal/orchestrator"
	"relaybot/internal/provider"
)

// runtime bundles the wired components shared by run and chat.
type runtime struct {
	cfg       *config.Config
	events    *bus.EventBus
	broadcast *bus.Broadcaster
	arch      *archive.Store
	generator domain.Generator
	orch      *orchestrator.Orchestrator
}

func (rt *runtime) close() {
	if rt.orch != nil {
		if err := rt.orch.Shutdown(); err != nil {
			logger.Warn("shutdown error", "err", err)
		}
	}
	if rt.arch != nil {
		_ = rt.arch.Close()
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		// Startup configuration problems are fatal by contract.
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var transport domain.Transport
	switch {
	case cfg.Channels.Telegram.Enabled:
		transport = channel.NewTelegram(channel.TelegramOptions{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
		})
	case cfg.Channels.Console.Enabled:
		transport = channel.NewConsole(channel.ConsoleOptions{Logger: logger})
	default:
		return domain.Errf(domain.KindConfiguration, "daemon.start", "no transport enabled")
	}

	rt, err := buildRuntime(ctx, cfg, transport)
	if err != nil {
		return err
	}
	defer rt.close()

	logger.Info("relaybot started",
		"transport", transport.Name(),
		"generator", rt.generator.Name(),
		"observer", cfg.Observer.Enabled,
	)
	return transport.Start(ctx)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		logger.Warn("config not found, using defaults", "err", err)
		cfg = config.Defaults()
	}
	// Terminal chat never needs the observer endpoint.
	cfg.Observer.Enabled = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := channel.NewConsole(channel.ConsoleOptions{Logger: logger})
	rt, err := buildRuntime(ctx, cfg, transport)
	if err != nil {
		return err
	}
	defer rt.close()

	return transport.Start(ctx)
}

// buildRuntime wires the pipeline around the given transport. The
// caller owns ctx; background pieces (observer server, eviction
// sweep) stop with it.
func buildRuntime(ctx context.Context, cfg *config.Config, transport domain.Transport) (*runtime, error) {
	applyLogLevel(cfg.General.LogLevel)

	persona, err := config.LoadPersona(cfg.General.PersonaPath)
	if err != nil {
		return nil, err
	}
	gen, err := provider.New(persona.Apply(cfg.Generator), persona.Instruction, logger)
	if err != nil {
		return nil, err
	}
	if !gen.ValidateConfiguration() {
		return nil, domain.Errf(domain.KindConfiguration, "daemon.start",
			"generator %s is missing required credentials or model", gen.Name())
	}
	if !gen.TestConnectivity(ctx) {
		logger.Warn("generator backend unreachable at startup", "generator", gen.Name())
	}

	store := history.New(cfg.History.MaxLength, logger)
	events := bus.NewEventBus(logger)

	rt := &runtime{cfg: cfg, events: events, generator: gen}

	if cfg.Observer.Enabled {
		rt.broadcast = bus.NewBroadcaster(bus.BroadcasterConfig{
			Host:   cfg.Observer.Host,
			Port:   cfg.Observer.Port,
			Logger: logger,
		}, events)
		go func() {
			if err := rt.broadcast.Start(ctx); err != nil {
				logger.Error("observer endpoint error", "err", err)
			}
		}()
	}

	if cfg.Archive.Enabled {
		arch, err := archive.New(cfg.Archive.DBPath, logger)
		if err != nil {
			return nil, err
		}
		rt.arch = arch
	}

	rt.orch = orchestrator.New(orchestrator.Config{
		Transport:   transport,
		Generator:   gen,
		Store:       store,
		Events:      events,
		Broadcaster: rt.broadcast,
		Archive:     rt.arch,
		Logger:      logger,
		ReplyDelay:  time.Duration(cfg.General.ReplyDelayMs) * time.Millisecond,
	})

	sweep := time.Duration(cfg.History.SweepEveryMinutes) * time.Minute
	maxAge := time.Duration(cfg.History.EvictAfterHours) * time.Hour
	if sweep > 0 && maxAge > 0 {
		go rt.orch.RunEvictionLoop(ctx, sweep, maxAge)
	}

	return rt, nil
}

func applyLogLevel(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}
