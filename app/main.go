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

	"github.com/lysyi3m/sec-comb/app/api"
	"github.com/lysyi3m/sec-comb/app/cfg"
	"github.com/lysyi3m/sec-comb/app/feed"
	"github.com/lysyi3m/sec-comb/app/filing"
	"github.com/lysyi3m/sec-comb/app/history"
	"github.com/lysyi3m/sec-comb/app/sec"
	"github.com/lysyi3m/sec-comb/app/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	config, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return exitCode(err)
	}
	if config == nil {
		return 0
	}

	level := slog.LevelInfo
	if config.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting SEC Comb",
		"version", config.Version,
		"api_url", config.APIURL,
		"auth_scheme", config.AuthScheme,
		"feed_path", config.FeedPath,
		"data_dir", config.DataDir,
		"max_items", config.MaxItems,
		"lookback", config.Lookback)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := history.NewStore(config.DataDir, config.FeedPath)

	task, err := newPublishFeedTask(config, store)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return exitCode(err)
	}

	if err := task.Execute(ctx); err != nil {
		slog.Error("Run failed", "type", task.GetType(), "id", task.GetID(), "error", err)
		return exitCode(err)
	}

	if config.ServeAddr != "" {
		if err := serve(ctx, config, store); err != nil {
			slog.Error("Server error", "error", err)
			return 1
		}
	}

	return 0
}

func newPublishFeedTask(config *cfg.Cfg, store *history.Store) (*tasks.PublishFeedTask, error) {
	rules, err := filing.LoadRules(config.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cfg.ErrConfig, err)
	}

	classifier, err := filing.NewClassifier(rules, filing.NewTextExtractor())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cfg.ErrConfig, err)
	}

	client := sec.NewClient(&http.Client{}, sec.Options{
		URL:        config.APIURL,
		APIKey:     config.APIKey,
		AuthScheme: config.AuthScheme,
		UserAgent:  config.UserAgent,
		Timeout:    config.Timeout,
	})

	generator := feed.NewGenerator(feed.Channel{
		Title:       "SEC Comb",
		Link:        "https://www.sec.gov/",
		Description: "Form 4 A/P + 8-K bullish keywords",
		SelfURL:     config.BaseUrl,
		Generator:   "SEC-Comb/" + config.Version,
	})

	return tasks.NewPublishFeedTask(
		sec.NewQueryBuilder(rules, config.Lookback, config.PageSize),
		client,
		classifier,
		generator,
		feed.NewVerifier(),
		store,
		config.MaxItems,
	), nil
}

func serve(ctx context.Context, config *cfg.Cfg, store *history.Store) error {
	httpServer := &http.Server{
		Addr:         config.ServeAddr,
		Handler:      api.NewServer(api.NewHandler(store, config.Version)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", config.ServeAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErrChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("HTTP server stopped")
	return nil
}

func exitCode(err error) int {
	if errors.Is(err, cfg.ErrConfig) {
		return 2
	}
	return 1
}
