// Command contentflowd runs the content workflow daemon: it loads the
// configuration, wires the checkpoint and article stores, registers
// the configured LLM endpoints and channels, and serves the REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/chanops/contentflow/article"
	"github.com/chanops/contentflow/channel"
	"github.com/chanops/contentflow/config"
	"github.com/chanops/contentflow/content"
	"github.com/chanops/contentflow/graph"
	"github.com/chanops/contentflow/graph/emit"
	"github.com/chanops/contentflow/graph/store"
	"github.com/chanops/contentflow/llm"
	llmanthropic "github.com/chanops/contentflow/llm/anthropic"
	llmgoogle "github.com/chanops/contentflow/llm/google"
	llmopenai "github.com/chanops/contentflow/llm/openai"
	"github.com/chanops/contentflow/server"
	"github.com/chanops/contentflow/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "contentflowd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "contentflow.yaml", "path to configuration file")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	checkpoints, err := newCheckpointStore(cfg)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	articles, closeArticles, err := newArticleStore(cfg)
	if err != nil {
		return err
	}
	defer closeArticles()

	endpoints := llm.NewRegistry()
	for _, ep := range cfg.Endpoints {
		if err := endpoints.Register(ep); err != nil {
			return fmt.Errorf("registering endpoint: %w", err)
		}
	}
	channels := channel.NewRegistry()
	for _, ch := range cfg.Channels {
		if err := channels.Register(ch); err != nil {
			return fmt.Errorf("registering channel: %w", err)
		}
	}

	gateway := llm.NewService(endpoints, providerFactory)

	emitter := emit.Emitter(emit.NewLogEmitter(os.Stdout, cfg.Log.JSON))
	if cfg.Tracing.Enabled {
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())
		otel.SetTracerProvider(tp)
		emitter = emit.Multi(emitter, emit.NewOTelEmitter(tp.Tracer("contentflow")))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := graph.NewMetrics(promReg)

	workflows, err := service.New(service.Deps{
		Graphs: content.GraphDeps{
			Nodes:    &content.Nodes{Gateway: gateway, Publisher: articles},
			Store:    checkpoints,
			Emitter:  emitter,
			Metrics:  metrics,
			MaxSteps: cfg.Engine.MaxSteps,
		},
		Channels: channels,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Workflows: workflows,
		Endpoints: endpoints,
		Channels:  channels,
		Articles:  articles,
		Metrics:   promReg,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// providerFactory builds the SDK-backed client for an endpoint.
func providerFactory(ep llm.Endpoint) (llm.Client, error) {
	switch ep.Provider {
	case llm.ProviderOpenAI:
		return llmopenai.New(ep)
	case llm.ProviderAnthropic:
		return llmanthropic.New(ep)
	case llm.ProviderGoogle:
		return llmgoogle.New(context.Background(), ep)
	}
	return nil, fmt.Errorf("%w: %s", llm.ErrUnknownProvider, ep.Provider)
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func newCheckpointStore(cfg config.Config) (store.Store[content.State], error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return store.NewSQLiteStore[content.State](cfg.Store.Path)
	case config.BackendMySQL:
		return store.NewMySQLStore[content.State](cfg.Store.DSN)
	case config.BackendPostgres:
		return store.NewPostgresStore[content.State](cfg.Store.DSN)
	default:
		return store.NewMemStore[content.State](), nil
	}
}

func newArticleStore(cfg config.Config) (article.Store, func(), error) {
	if cfg.Articles.Backend == config.BackendPostgres {
		s, err := article.NewPostgresStore(cfg.Articles.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return article.NewMemStore(), func() {}, nil
}
