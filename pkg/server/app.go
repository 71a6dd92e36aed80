package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LiqMap/internal/domain/repository"
	"LiqMap/internal/handler/api"
	mid "LiqMap/internal/middleware"
	icache "LiqMap/internal/service/cache"
	"LiqMap/internal/usecase"
	pkgcache "LiqMap/pkg/cache"
	pkgch "LiqMap/pkg/clickhouse"
	"LiqMap/pkg/config"
	xhttp "LiqMap/pkg/http"
	pkgkafka "LiqMap/pkg/kafka"
	applogger "LiqMap/pkg/logger"
	"LiqMap/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	consumer   *pkgkafka.Consumer
	bars       pkgkafka.MessageHandler
	chClient   *pkgch.Client
	proc       *usecase.SnapshotProcessor
	pipeline   *mid.SnapshotPipeline
	hub        *api.WSHub
	heatmap    *usecase.HeatmapUseCase
	respCache  icache.BytesCache
	locks      pkgcache.Service
	snaps      repository.SnapshotStore
	httpServer *xhttp.Server
	backfillQ  *queue.RedisQueue
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	bars pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	proc *usecase.SnapshotProcessor,
	pipeline *mid.SnapshotPipeline,
	hub *api.WSHub,
	heatmap *usecase.HeatmapUseCase,
	respCache icache.BytesCache,
	locks pkgcache.Service,
	snaps repository.SnapshotStore,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		consumer:  consumer,
		bars:      bars,
		chClient:  chClient,
		proc:      proc,
		pipeline:  pipeline,
		hub:       hub,
		heatmap:   heatmap,
		respCache: respCache,
		locks:     locks,
		snaps:     snaps,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.pipeline.Start(ctx)

	// Backfill queue runs only with Redis available.
	if a.cfg.Backfill.Enabled && a.cfg.Redis.Enabled && a.cfg.Redis.Addr != "" {
		a.startBackfillQueue()
	}

	// HTTP: heatmap REST endpoints plus the websocket stream.
	hh := api.NewHeatmapEchoHandler(a.l, a.heatmap)
	hh.SetCache(a.respCache)
	if a.backfillQ != nil {
		hh.SetBackfillQueue(a.backfillQ)
	}

	a.httpServer = xhttp.NewServer(routes(hh, a.hub),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Live bars consumer drives the simulation.
	if a.consumer != nil && a.bars != nil {
		a.consumer.RegisterHandler(a.bars)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.bars.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("app started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("symbols", a.cfg.Simulation.SymbolSet),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) startBackfillQueue() {
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	job := usecase.NewBackfillJob(a.heatmap, a.snaps, a.locks, a.l)
	q := queue.NewRedisQueue(a.l,
		&queue.QueueConfig{
			Workers:    a.cfg.Backfill.Workers,
			RetryLimit: 3,
			RetryDelay: 10 * time.Second,
		},
		rdb,
		queue.ModeProducerConsumer,
		queue.WithKeyPrefix(a.cfg.Backfill.QueueName),
	)
	q.RegisterJob(job)
	if err := q.Start(); err != nil {
		a.l.Error("backfill queue start error", applogger.Error(err))
		return
	}
	a.backfillQ = q
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// Stop intake first so nothing new enters the pipeline.
	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	if a.backfillQ != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.backfillQ.Stop(stopCtx); err != nil {
			a.l.Warn("backfill queue stop error", applogger.Error(err))
		}
		cancel()
	}

	a.pipeline.Stop()
	a.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.proc != nil {
		a.proc.Close()
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}

// routes combines the REST handler and websocket hub into one registrar.
func routes(handlers ...xhttp.Handler) xhttp.Handler {
	return routeSet(handlers)
}

type routeSet []xhttp.Handler

func (rs routeSet) RegisterRoutes(e *echo.Echo) {
	for _, h := range rs {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}
