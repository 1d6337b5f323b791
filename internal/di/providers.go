package di

import (
	"context"
	"fmt"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"
	domsvc "PriceSentinel/internal/domain/service"
	"PriceSentinel/internal/handler/api"
	mid "PriceSentinel/internal/middleware"
	internalrepo "PriceSentinel/internal/repository"
	"PriceSentinel/internal/service/broadcast"
	icache "PriceSentinel/internal/service/cache"
	qmetrics "PriceSentinel/internal/service/metrics"
	"PriceSentinel/internal/service/pricefeed"
	"PriceSentinel/internal/service/ratelimit"
	"PriceSentinel/internal/services/analytics"
	"PriceSentinel/internal/usecase"
	pkgch "PriceSentinel/pkg/clickhouse"
	"PriceSentinel/pkg/config"
	xhttp "PriceSentinel/pkg/http"
	pkgkafka "PriceSentinel/pkg/kafka"
	applogger "PriceSentinel/pkg/logger"
	"PriceSentinel/pkg/metrics"
	"PriceSentinel/pkg/postgres"
	"PriceSentinel/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvidePromRegistry creates the registry behind /metrics.
func ProvidePromRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

func ProvideQueryMetrics(reg *prometheus.Registry) *qmetrics.QueryMetrics {
	return qmetrics.NewQueryMetrics(reg)
}

// ProvideKafkaProducer returns nil when kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the process logger. With a collect topic and a
// producer, repeated error lines are aggregated and shipped to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, err
	}
	if producer == nil || cfg.Log.Collect.Topic == "" {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Log.Collect.Interval,
		CountThreshold: cfg.Log.Collect.CountThreshold,
		Topic:          cfg.Log.Collect.Topic,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideStore opens the configured backend. Schema creation happens in App.Run.
func ProvideStore(cfg *config.Config) (repository.ObservationStore, func(), error) {
	var (
		store repository.ObservationStore
		err   error
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, openErr := postgres.Open(cfg.Postgres.DSN,
			postgres.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
			postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		)
		if openErr != nil {
			return nil, nil, fmt.Errorf("postgres: %w", openErr)
		}
		store = internalrepo.NewPostgresStore(db)
	case "clickhouse":
		c := cfg.ClickHouse
		client, openErr := pkgch.NewClient(pkgch.Config{
			Host:             c.Host,
			Port:             c.Port,
			Database:         c.Database,
			User:             c.User,
			Password:         c.Password,
			MaxOpenConns:     c.MaxOpenConns,
			MaxIdleConns:     c.MaxIdleConns,
			DialTimeout:      c.DialTimeout,
			ReadTimeout:      c.ReadTimeout,
			MaxExecutionTime: c.MaxExecutionTime,
			UseHTTP:          c.UseHTTP,
			AsyncInsert:      c.AsyncInsert,
			WaitForAsync:     c.WaitForAsync,
		})
		if openErr != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", openErr)
		}
		store = internalrepo.NewClickHouseStore(client)
	case "sqlite":
		store, err = internalrepo.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
	case "memory":
		store = internalrepo.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return store, func() { _ = store.Close() }, nil
}

func ProvidePriceSource(cfg *config.Config) (repository.PriceSource, error) {
	switch cfg.Source.Kind {
	case "http":
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Source.Timeout))
		return pricefeed.NewHTTPSource(client, cfg.Source.URL, cfg.Source.SymbolParam, cfg.Source.PricePath), nil
	case "binance":
		b := cfg.Source.Binance
		return pricefeed.NewBinanceSource(b.BaseURL, b.APIKey, b.APISecret), nil
	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.Source.Kind)
	}
}

func ProvideEvaluator(cfg *config.Config) domsvc.AnomalyEvaluator {
	return analytics.NewZScoreEvaluator(cfg.Ingest.Window, cfg.Ingest.Threshold)
}

func ProvideBroadcastRegistry(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *broadcast.Registry {
	return broadcast.NewRegistry(l, m, cfg.Broadcast.SendTimeout)
}

// ProvideSignalPipeline fans signals out to local subscribers and, when kafka
// is enabled, to the signal topic.
func ProvideSignalPipeline(
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
	registry *broadcast.Registry,
	producer *pkgkafka.Producer,
) *mid.SignalPipeline {
	p := mid.NewSignalPipeline(l, m, mid.WithBufferSize(cfg.Broadcast.BufferSize))
	p.AddSink("broadcast", 0, func(ctx context.Context, sig models.Signal) error {
		registry.Broadcast(ctx, sig)
		return nil
	})
	if producer != nil {
		pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
		p.AddSink("kafka", cfg.Kafka.Producer.MaxAttempts, pub.PublishSignal)
	}
	return p
}

// ProvideIngestionLoop returns nil on relay-only instances.
func ProvideIngestionLoop(
	cfg *config.Config,
	src repository.PriceSource,
	store repository.ObservationStore,
	eval domsvc.AnomalyEvaluator,
	pipeline *mid.SignalPipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.IngestionLoop {
	if !cfg.Ingest.Enabled {
		return nil
	}
	return usecase.NewIngestionLoop(
		usecase.LoopConfig{Symbol: cfg.Ingest.Symbol, Interval: cfg.Ingest.Interval},
		src, store, eval, pipeline, m, l,
	)
}

// ProvideCache prefers Redis and falls back to an in-process TTL cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (icache.BytesCache, func(), error) {
	if !cfg.Redis.Enabled {
		return icache.NewTTLCache(), func() {}, nil
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		// the cache is an optimisation; keep serving without it
		l.Warn("redis unavailable, using in-process cache", applogger.String("addr", cfg.Redis.Addr), applogger.Error(err))
		_ = rc.Close()
		return icache.NewTTLCache(), func() {}, nil
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideMarketQuery(cfg *config.Config, store repository.ObservationStore, c icache.BytesCache, qm *qmetrics.QueryMetrics, l *applogger.Logger) *usecase.MarketQuery {
	return usecase.NewMarketQuery(store, c, cfg.Cache.TTL, qm, l)
}

const connectIdle = 10 * time.Minute

// ProvideConnectLimiter sweeps idle per-IP buckets until cleanup runs.
func ProvideConnectLimiter(cfg *config.Config) (*ratelimit.Limiter, func()) {
	lim := ratelimit.New(cfg.Broadcast.ConnectBurst, cfg.Broadcast.ConnectRate, connectIdle)
	stop := make(chan struct{})
	lim.StartSweeper(connectIdle/2, stop)
	return lim, func() { close(stop) }
}

func ProvideHTTPHandler(cfg *config.Config, l *applogger.Logger, q *usecase.MarketQuery, registry *broadcast.Registry, limiter *ratelimit.Limiter) xhttp.Handler {
	return api.Routes{
		api.NewMarketHandler(l, q),
		api.NewStreamHandler(l, registry, limiter, cfg.Broadcast.PingInterval, cfg.Server.CORSOrigins),
	}
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h xhttp.Handler, reg *prometheus.Registry) *xhttp.Server {
	return xhttp.NewServer(l, h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
		xhttp.WithRegistry(reg, reg),
	)
}

// ProvideKafkaConsumer returns nil unless relay mode is on.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Relay.Enabled {
		return nil, nil
	}
	r := cfg.Kafka.Relay
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(r.GroupID),
		pkgkafka.WithConsumerRetry(r.RetryMax, r.BackoffMin, r.BackoffMax),
		pkgkafka.WithConsumerDLQ(r.DLQTopic),
		pkgkafka.WithConsumerFetch(r.MinBytes, r.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideSignalRelay(cfg *config.Config, registry *broadcast.Registry, m repository.Metrics, l *applogger.Logger) *usecase.SignalRelayHandler {
	return usecase.NewSignalRelayHandler(cfg.Kafka.Topic, registry, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	store repository.ObservationStore,
	registry *broadcast.Registry,
	pipeline *mid.SignalPipeline,
	loop *usecase.IngestionLoop,
	consumer *pkgkafka.Consumer,
	relay *usecase.SignalRelayHandler,
) *server.App {
	c := server.Components{
		Logger:          l,
		HTTP:            srv,
		Store:           store,
		Registry:        registry,
		Pipeline:        pipeline,
		Loop:            loop,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if consumer != nil {
		c.Consumer = consumer
		c.Relay = relay
	}
	return server.New(c)
}
