package di

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"LiqMap/internal/domain/models"
	"LiqMap/internal/domain/repository"
	"LiqMap/internal/handler/api"
	mid "LiqMap/internal/middleware"
	internalrepo "LiqMap/internal/repository"
	icache "LiqMap/internal/service/cache"
	"LiqMap/internal/simulation"
	"LiqMap/internal/usecase"
	pkgcache "LiqMap/pkg/cache"
	pkgch "LiqMap/pkg/clickhouse"
	"LiqMap/pkg/config"
	xhttp "LiqMap/pkg/http"
	pkgkafka "LiqMap/pkg/kafka"
	applogger "LiqMap/pkg/logger"
	"LiqMap/pkg/metrics"
	"LiqMap/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS liqmap",
		"CREATE TABLE IF NOT EXISTS liqmap.candles_1m (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
		"CREATE TABLE IF NOT EXISTS liqmap.candles_5m (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
		"CREATE TABLE IF NOT EXISTS liqmap.candles_15m (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
		"CREATE TABLE IF NOT EXISTS liqmap.candles_1h (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
		"CREATE TABLE IF NOT EXISTS liqmap.open_interest (ts DateTime, symbol String, value Float64, delta Float64) ENGINE=MergeTree ORDER BY (symbol, ts)",
		"CREATE TABLE IF NOT EXISTS liqmap.heatmap_snapshots (ts DateTime, symbol String, levels String, total_long Float64, total_short Float64, created Int32, consumed Int32) ENGINE=ReplacingMergeTree ORDER BY (symbol, ts)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideMarketStore creates the ClickHouse market data reader.
func ProvideMarketStore(chClient *pkgch.Client, l *applogger.Logger) repository.MarketDataStore {
	store := internalrepo.NewCHMarketStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideSnapshotStore creates ClickHouse snapshot storage.
func ProvideSnapshotStore(chClient *pkgch.Client, cfg *config.Config) repository.SnapshotStore {
	return internalrepo.NewCHSnapshotStore(chClient.DB(), cfg.ClickHouse.Database+".heatmap_snapshots")
}

// ProvideSnapshotPublisher creates the Kafka snapshot publisher.
func ProvideSnapshotPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SnapshotPublisher {
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.SnapshotTopic)
}

// ProvideMarginProvider builds the maintenance margin source. A configured
// URL wins over the inline table, which wins over the flat rate.
func ProvideMarginProvider(cfg *config.Config) (simulation.MarginProvider, error) {
	m := cfg.Simulation.Margin

	if m.URL != "" {
		tiers, err := fetchMarginTable(m.URL)
		if err != nil {
			return nil, fmt.Errorf("margin table fetch: %w", err)
		}
		return simulation.NewTieredMargin(tiers)
	}

	if len(m.Table) > 0 {
		tiers := make([]simulation.MarginTier, len(m.Table))
		for i, t := range m.Table {
			tiers[i] = simulation.MarginTier{MaxNotional: t.MaxNotional, Rate: t.Rate}
		}
		return simulation.NewTieredMargin(tiers)
	}

	return simulation.NewFlatMargin(m.Rate)
}

// fetchMarginTable pulls a tiered margin table from an external endpoint.
// Expected response: [{"max_notional": ..., "rate": ...}, ...]
func fetchMarginTable(url string) ([]simulation.MarginTier, error) {
	var rows []struct {
		MaxNotional float64 `json:"max_notional"`
		Rate        float64 `json:"rate"`
	}
	client := xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodGet,
		URL:    url,
	}, &rows); err != nil {
		return nil, err
	}

	tiers := make([]simulation.MarginTier, len(rows))
	for i, r := range rows {
		tiers[i] = simulation.MarginTier{MaxNotional: r.MaxNotional, Rate: r.Rate}
	}
	return tiers, nil
}

// ProvideSimFactory assembles the shared simulation policy set.
func ProvideSimFactory(cfg *config.Config, margin simulation.MarginProvider) (*usecase.SimFactory, error) {
	dist := make(simulation.Distribution, len(cfg.Simulation.Tiers))
	for i, t := range cfg.Simulation.Tiers {
		dist[i] = simulation.LeverageTier{Leverage: t.Leverage, Weight: t.Weight}
	}
	if err := dist.Validate(); err != nil {
		return nil, fmt.Errorf("leverage distribution: %w", err)
	}

	side, err := simulation.NewCandleDirectionPolicy(cfg.Simulation.Side.Bias)
	if err != nil {
		return nil, fmt.Errorf("side policy: %w", err)
	}

	var closure simulation.ClosurePolicy
	switch cfg.Simulation.Closure {
	case "nearest_first":
		closure = simulation.NearestFirstClosure{}
	default:
		closure = simulation.ProportionalClosure{}
	}

	return &usecase.SimFactory{
		Dist:    dist,
		Margin:  margin,
		Side:    side,
		Closure: closure,
		Bucket:  cfg.Simulation.Bucket,
	}, nil
}

// ProvideLiveSet creates the per-symbol live runner set.
func ProvideLiveSet(factory *usecase.SimFactory, m repository.Metrics, l *applogger.Logger) *usecase.LiveSet {
	return usecase.NewLiveSet(factory, m, l)
}

// ProvideSnapshotProcessor routes snapshots to ClickHouse and Kafka.
func ProvideSnapshotProcessor(
	pub repository.SnapshotPublisher,
	store repository.SnapshotStore,
	m repository.Metrics,
) *usecase.SnapshotProcessor {
	return usecase.NewSnapshotProcessor(pub, store, m, "both")
}

// ProvideWSHub creates the websocket broadcast hub.
func ProvideWSHub(l *applogger.Logger) *api.WSHub {
	return api.NewWSHub(l)
}

// ProvidePipeline builds the snapshot pipeline delivering to storage, Kafka,
// and websocket subscribers. Broadcast happens only after a successful store,
// so subscribers never see snapshots that later fail persistence.
func ProvidePipeline(proc *usecase.SnapshotProcessor, hub *api.WSHub, m repository.Metrics) *mid.SnapshotPipeline {
	sink := mid.SinkFunc(func(ctx context.Context, s *models.HeatmapSnapshot) error {
		if err := proc.Process(ctx, s); err != nil {
			return err
		}
		hub.Broadcast(s)
		return nil
	})
	return mid.NewSnapshotPipeline(sink, m, mid.WithBufferSize(2000))
}

// ProvideKafkaBarsHandler registers handler for the bars topic.
func ProvideKafkaBarsHandler(live *usecase.LiveSet, pipeline *mid.SnapshotPipeline, m repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, live, pipeline, m)
}

// ProvideHeatmapUseCase creates the query/simulate use case.
func ProvideHeatmapUseCase(
	snaps repository.SnapshotStore,
	market repository.MarketDataStore,
	factory *usecase.SimFactory,
) *usecase.HeatmapUseCase {
	return usecase.NewHeatmapUseCase(snaps, market, factory)
}

// ProvideResponseCache picks Redis-backed bytes cache when Redis is enabled,
// in-process TTL cache otherwise.
func ProvideResponseCache(cfg *config.Config) icache.BytesCache {
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideLockCache builds the distributed lock service used by backfill.
// Nil when Redis is disabled; the job then runs unlocked.
func ProvideLockCache(cfg *config.Config) pkgcache.Service {
	if !cfg.Redis.Enabled || cfg.Redis.Addr == "" {
		return nil
	}
	host, port := splitHostPort(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil
	}
	return pkgcache.NewLayeredCache(rc, 1000)
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6379
	}
	return host, port
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	bars *usecase.KafkaBarsHandler,
	chClient *pkgch.Client,
	proc *usecase.SnapshotProcessor,
	pipeline *mid.SnapshotPipeline,
	hub *api.WSHub,
	heatmap *usecase.HeatmapUseCase,
	respCache icache.BytesCache,
	locks pkgcache.Service,
	snaps repository.SnapshotStore,
) *server.App {
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return server.New(cfg, l, consumer, bars, chClient, proc, pipeline, hub, heatmap, respCache, locks, snaps)
}
