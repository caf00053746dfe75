// Command parley runs the multi-agent discussion server: an HTTP API for
// creating rooms plus a per-room WebSocket stream of discussion events.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/agent/anthropic"
	"github.com/parleyhq/parley/agent/openai"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/server"
	"github.com/parleyhq/parley/store"
	"github.com/parleyhq/parley/store/badgerstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "parley:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	var st core.Store
	switch cfg.StoreBackend {
	case "badger":
		bs, err := badgerstore.Open(cfg.BadgerPath, slog.Default())
		if err != nil {
			return fmt.Errorf("open badger store: %w", err)
		}
		defer bs.Close()
		st = bs
	default:
		st = store.NewInMemoryStore()
	}

	manager := orchestrator.NewManager(st, newBinder(cfg), logger, orchestrator.Config{
		SpeakTimeout:    cfg.SpeakTimeout,
		PrepareTimeout:  cfg.PrepareTimeout,
		TurnDelay:       cfg.TurnDelay,
		MaxTurnFailures: cfg.MaxTurnFailures,
	})
	defer manager.Shutdown()

	srvOpts := []server.Option{server.WithContextMaxChars(cfg.ContextMaxChars)}
	if cfg.HistoryRoot != "" {
		srvOpts = append(srvOpts, server.WithHistoryRoot(cfg.HistoryRoot))
	}
	srv := server.New(st, manager, logger, srvOpts...)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "store", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}

// newBinder maps a participant's agent type to a concrete backend. The set of
// backend types is closed; an unknown type is a construction error.
func newBinder(cfg *config.Config) agent.Binder {
	return func(participantID, agentType string) (agent.Handle, error) {
		switch core.AgentType(agentType) {
		case core.AgentAnthropic:
			return anthropic.NewHandle(func(o *anthropic.Options) {
				if cfg.AnthropicModel != "" {
					o.Model = sdkanthropic.Model(cfg.AnthropicModel)
				}
				o.Temperature = cfg.Temperature
				o.MaxTokens = int64(cfg.MaxTokens)
				o.APIKey = cfg.AnthropicAPIKey
			}), nil
		case core.AgentOpenAI:
			return openai.NewHandle(func(o *openai.Options) {
				if cfg.OpenAIModel != "" {
					o.Model = cfg.OpenAIModel
				}
				o.Temperature = cfg.Temperature
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}), nil
		case core.AgentMock:
			return agent.NewMockHandle(participantID), nil
		default:
			return nil, fmt.Errorf("unknown agent type %q", agentType)
		}
	}
}
