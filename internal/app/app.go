// Package app wires the store, generator, event channel, orchestrator and
// work queue into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/quizforge/internal/config"
	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/llm"
	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/material"
	"github.com/abhisek/quizforge/internal/metrics"
	"github.com/abhisek/quizforge/internal/orchestrator"
	"github.com/abhisek/quizforge/internal/queue"
	"github.com/abhisek/quizforge/internal/retrieval"
	"github.com/abhisek/quizforge/internal/server"
	"github.com/abhisek/quizforge/internal/store"
)

// ProviderTemplate selects the deterministic generator with no LLM calls.
const ProviderTemplate = "template"

// App is the assembled service.
type App struct {
	cfg      config.Config
	log      *logger.Logger
	store    *store.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	hub      *events.Hub
	relay    *events.Relay
	bus      *events.RedisBus
	orch     *orchestrator.Orchestrator
	queue    *queue.Queue
	server   *server.Server
}

// New builds every component. The caller owns st and closes it after the
// app has stopped.
func New(ctx context.Context, cfg config.Config, st *store.Store, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	if strings.EqualFold(cfg.Log.Mode, "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := events.NewHub(events.Config{
		OutboxSize:      cfg.Events.OutboxSize,
		PublishTimeout:  cfg.Events.PublishTimeout,
		DuplicatePolicy: events.ParseDuplicatePolicy(cfg.Events.DuplicatePolicy),
	}, log, m)

	a := &App{
		cfg:      cfg,
		log:      log.With("component", "App"),
		store:    st,
		registry: reg,
		metrics:  m,
		hub:      hub,
	}

	// A nil *RedisBus must not reach the relay as a non-nil Bus.
	var bus events.Bus
	if cfg.Events.Redis.Addr != "" {
		rb, err := events.NewRedisBus(ctx, events.RedisConfig{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			Channel:  cfg.Events.Redis.Channel,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		a.bus = rb
		bus = rb
	}
	a.relay = events.NewRelay(hub, bus, log, m)

	gateway := orchestrator.NewStoreGateway(st.Questions(), st.Materials())
	a.orch = orchestrator.New(orchestrator.Config{
		MaxBatchSize: cfg.Orchestrator.MaxBatchSize,
		MaxPassages:  cfg.Orchestrator.MaxPassages,
		PriorItems:   cfg.Orchestrator.PriorItems,
	}, orchestrator.Deps{
		Generator: buildGenerator(ctx, cfg.LLM, st.EventRepo(), log),
		Events:    a.relay,
		Targets:   st.Catalog(),
		Gateway:   gateway,
		Retriever: retrieval.NewKeywordRetriever(st.Materials()),
		Stems:     st.Questions(),
		Log:       log,
		Metrics:   m,
	})

	indexer := material.NewIndexer(st.Materials(), material.Config{
		MaxPassageChars: cfg.Material.MaxPassageChars,
	}, log)

	a.queue = queue.New(queue.Config{
		Concurrency: cfg.Queue.Concurrency,
		MaxRetries:  cfg.Queue.MaxRetries,
		Backoff: queue.Backoff{
			Base:       cfg.Queue.BackoffBase,
			Multiplier: cfg.Queue.BackoffMultiplier,
			Max:        cfg.Queue.BackoffMax,
		},
		JobTimeout: cfg.Queue.JobTimeout,
		Retention:  cfg.Queue.Retention,
	}, queue.Handlers{Unit: a.orch, Material: indexer},
		queue.WithJournal(st.Jobs()),
		queue.WithExistenceChecker(gateway),
		queue.WithLogger(log),
		queue.WithMetrics(m),
	)
	a.orch.SetQueue(a.queue)

	a.server = server.New(server.Deps{
		Batches:   a.orch,
		Jobs:      a.queue,
		Hub:       hub,
		Catalog:   st.Catalog(),
		Materials: st.Materials(),
		Gatherer:  reg,
		Log:       log,
	})
	return a, nil
}

// buildGenerator returns the LLM generator with template fallback, or the
// template generator alone when no provider is usable.
func buildGenerator(ctx context.Context, cfg llm.Config, rec llm.EventRecorder, log *logger.Logger) itemgen.Generator {
	template := itemgen.NewTemplateGenerator()
	if cfg.Provider == ProviderTemplate {
		log.Info("using template generator")
		return template
	}
	if err := cfg.Validate(); err != nil {
		found, ok := llm.DiscoverConfig()
		if !ok {
			log.Warn("LLM provider not configured, using template generator", "error", err)
			return template
		}
		found.Retry, found.RateLimit, found.Timeout = cfg.Retry, cfg.RateLimit, cfg.Timeout
		log.Info("discovered LLM provider from environment", "provider", found.Provider)
		cfg = found
	}
	provider, err := llm.NewProvider(ctx, cfg, rec, log)
	if err != nil {
		log.Warn("LLM provider unavailable, using template generator", "error", err)
		return template
	}
	log.Info("LLM provider ready", "provider", cfg.Provider, "model", provider.ModelID())
	return itemgen.NewFallbackGenerator(itemgen.New(provider, itemgen.DefaultConfig()), template, log)
}

func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }
func (a *App) Queue() *queue.Queue { return a.queue }
func (a *App) Hub() *events.Hub { return a.hub }
func (a *App) Handler() http.Handler { return a.server.Router() }

// Run recovers journaled jobs, then runs the queue, the heartbeat and the
// bus relay until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.queue.Recover(ctx); err != nil {
		a.log.Warn("job recovery failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.queue.Run(ctx) })
	g.Go(func() error { return a.hub.RunHeartbeat(ctx, a.cfg.Events.HeartbeatInterval) })
	g.Go(func() error { return a.relay.Forward(ctx) })
	return g.Wait()
}

// Serve runs the pipeline and the HTTP API until ctx is done or the
// listener fails.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with the service context, otherwise Shutdown would
		// wait on them until its deadline.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

// Close releases the event bus connection.
func (a *App) Close() error {
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}
