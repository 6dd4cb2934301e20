package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/merehq/mere-core/internal/config"
	"github.com/merehq/mere-core/internal/database"
	"github.com/merehq/mere-core/internal/netmon"
	"github.com/merehq/mere-core/internal/offline"
	"github.com/merehq/mere-core/internal/realtime"
	"github.com/merehq/mere-core/internal/remote"
	"github.com/merehq/mere-core/internal/repository"
	"github.com/merehq/mere-core/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.OwnerID == "" {
		log.Fatal("MERE_OWNER_ID is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("local store ready", zap.String("path", cfg.DatabasePath))

	// Each component is constructed once and handed to its dependents; no
	// process-wide singletons.
	store := repository.NewStore(db)
	monitor := netmon.New(netmon.NewProber(cfg.ProbeAddress), logger)
	boundary := remote.New(cfg.ServerURL)
	orchestrator := syncer.New(store, boundary, monitor, cfg.OwnerID, logger,
		syncer.WithInterval(cfg.SyncInterval))
	interpreter := offline.New(store, cfg.OwnerID, logger)

	channel, err := realtime.NewChannel(cfg.ChannelURL, cfg.OwnerID, logger)
	if err != nil {
		logger.Fatal("failed to create channel", zap.Error(err))
	}

	monitor.Start(ctx)
	go orchestrator.Run(ctx)
	channel.Connect(ctx)
	go logChannelActivity(ctx, channel, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		channel.Disconnect()
		cancel()
	}()

	runPrompt(ctx, os.Stdin, channel, interpreter, logger)
}

// runPrompt reads commands line by line and routes each one: over the
// channel while it is connected, through the offline interpreter otherwise.
// It returns on EOF or when ctx is cancelled, even with a read in flight.
func runPrompt(ctx context.Context, in io.Reader, channel *realtime.Channel, interpreter *offline.Interpreter, logger *zap.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var text string
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text = line
		}
		if text == "" {
			continue
		}

		if channel.State() == realtime.StateConnected {
			if err := channel.Send(realtime.TextCommand{Text: text}); err != nil {
				logger.Warn("channel send failed, falling back to offline", zap.Error(err))
			} else {
				continue
			}
		}

		result, err := interpreter.Handle(ctx, text)
		if err != nil {
			logger.Error("offline command failed", zap.Error(err))
			continue
		}
		fmt.Println(result.Reply)
	}
}

func logChannelActivity(ctx context.Context, channel *realtime.Channel, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-channel.Messages():
			switch m := msg.(type) {
			case realtime.TextResponse:
				fmt.Println(m.Response)
			case realtime.AIResponse:
				fmt.Println(m.Response.Text)
			case realtime.ProcessingStatus:
				logger.Debug("processing", zap.String("stage", m.Stage))
			case realtime.ServerError:
				logger.Warn("server error", zap.String("message", m.Message))
			}
		case status := <-channel.StatusChanges():
			logger.Info("channel status", zap.String("state", status.State.String()),
				zap.Error(status.Err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
