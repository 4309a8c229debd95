package di

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	domrepo "RateCast/internal/domain/repository"
	domsvc "RateCast/internal/domain/service"
	"RateCast/internal/handler/api"
	"RateCast/internal/handler/ws"
	internalrepo "RateCast/internal/repository"
	"RateCast/internal/service/ratelimit"
	"RateCast/internal/services/features"
	"RateCast/internal/services/learning"
	"RateCast/internal/services/notify"
	"RateCast/internal/services/report"
	"RateCast/internal/usecase"
	"RateCast/pkg/cache"
	pkgch "RateCast/pkg/clickhouse"
	"RateCast/pkg/config"
	xhttp "RateCast/pkg/http"
	pkgkafka "RateCast/pkg/kafka"
	applogger "RateCast/pkg/logger"
	"RateCast/pkg/metrics"
	"RateCast/pkg/postgres"
	"RateCast/pkg/server"
)

const (
	quotesTable    = "quotes"
	forecastsTable = "forecasts"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideSchema fixes the feature columns for this deployment.
func ProvideSchema(cfg *config.Config) (*features.Schema, error) {
	widths := cfg.Pipeline.WindowWidths
	if len(widths) == 0 {
		widths = features.DefaultWidths
	}
	return features.NewSchema(widths, cfg.Pipeline.Series)
}

// MartTable names the mart after its column layout, so a width change starts a fresh table.
func MartTable(schema *features.Schema) string {
	parts := make([]string, 0, len(schema.Widths))
	for _, w := range schema.Widths {
		parts = append(parts, strconv.Itoa(w))
	}
	return "mart_" + schema.Series + "_w" + strings.Join(parts, "_")
}

// ProvideClickHouseClient creates a ClickHouse client and its tables.
func ProvideClickHouseClient(cfg *config.Config, schema *features.Schema) (*pkgch.Client, func(), error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
		internalrepo.QuotesDDL(client.Table(quotesTable)),
		internalrepo.ForecastsDDL(client.Table(forecastsTable)),
		internalrepo.MartDDL(client.Table(MartTable(schema)), schema.Columns()),
	}); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgres opens the crawler database when price_source is postgres; otherwise nil.
func ProvidePostgres(cfg *config.Config) (*gorm.DB, func(), error) {
	if cfg.Storage.PriceSource != "postgres" {
		return nil, func() {}, nil
	}
	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = postgres.Close(db) }, nil
}

// ProvideCache returns Redis behind a small in-process L1, or a plain in-process cache.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxItems), cache.WithMemoryDefaultTTL(cfg.Cache.ForecastTTL)), func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc, cfg.Cache.MaxItems, 30*time.Second), func() { _ = rc.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func ProvideQuotes(ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHQuotes {
	q := internalrepo.NewCHQuotes(ch.DB(), ch.Table(quotesTable))
	q.SetLogger(l)
	return q
}

// ProvidePriceSource reads history from ClickHouse, or from the crawler's Postgres table.
func ProvidePriceSource(cfg *config.Config, quotes *internalrepo.CHQuotes, pg *gorm.DB) domrepo.PriceSource {
	if cfg.Storage.PriceSource == "postgres" {
		return internalrepo.NewPGQuotes(pg, cfg.Postgres.Table)
	}
	return quotes
}

func ProvideMart(ch *pkgch.Client, schema *features.Schema, l *applogger.Logger) *internalrepo.CHMart {
	m := internalrepo.NewCHMart(ch.DB(), ch.Table(MartTable(schema)), schema.Columns())
	m.SetLogger(l)
	return m
}

func ProvideForecastLog(ch *pkgch.Client) domrepo.ForecastLog {
	return internalrepo.NewCHForecasts(ch.DB(), ch.Table(forecastsTable))
}

// ProvideModelStore keeps pipelines on disk, or in the cache backend when model_store is redis.
func ProvideModelStore(cfg *config.Config, c cache.Service) domrepo.ModelStore {
	if cfg.Storage.ModelStore == "redis" {
		return internalrepo.NewCacheModelStore(c, cfg.Redis.ModelTTL)
	}
	return internalrepo.NewFileModelStore(cfg.Storage.ModelDir)
}

// ProvideRunPublisher returns nil without Kafka; triggers then run in-process.
func ProvideRunPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.RunPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Runs, cfg.Kafka.Topics.Forecasts)
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideNotifier fans artifacts out to the websocket hub, Telegram and the reports topic.
func ProvideNotifier(cfg *config.Config, producer *pkgkafka.Producer, hub *ws.Hub, limiter *ratelimit.Limiter, l *applogger.Logger) domrepo.Notifier {
	out := notify.Multi{hub}
	if cfg.Telegram.Enabled {
		out = append(out, notify.NewTelegram(notify.TelegramConfig{
			BaseURL:  cfg.Telegram.BaseURL,
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			Interval: cfg.Telegram.MinInterval,
		}, xhttp.NewClient(xhttp.WithTimeout(cfg.Telegram.Timeout)), limiter, l))
	}
	if producer != nil {
		out = append(out, notify.NewKafka(producer, cfg.Kafka.Topics.Reports))
	}
	return out
}

func ProvideReporter(cfg *config.Config, l *applogger.Logger) domsvc.Reporter {
	if !cfg.Report.Enabled {
		return nil
	}
	return report.NewRenderer(
		report.WithPeriods(cfg.Report.HistoryDays),
		report.WithSize(cfg.Report.Width, cfg.Report.Height),
		report.WithArchiveDir(cfg.Report.Dir),
		report.WithLogger(l),
	)
}

func ProvideBuilder(cfg *config.Config, schema *features.Schema) *features.Builder {
	return features.NewBuilder(schema, cfg.Pipeline.Decay)
}

func ProvideTrainer(cfg *config.Config, l *applogger.Logger) *learning.Trainer {
	return learning.NewTrainer(learning.WithFolds(cfg.Pipeline.Folds), learning.WithTrainerLogger(l))
}

// ProvidePipelineRunner wires the per-entity pipeline. Finished runs refresh the websocket hub.
func ProvidePipelineRunner(
	cfg *config.Config,
	l *applogger.Logger,
	source domrepo.PriceSource,
	mart *internalrepo.CHMart,
	forecasts domrepo.ForecastLog,
	modelStore domrepo.ModelStore,
	publisher domrepo.RunPublisher,
	notifier domrepo.Notifier,
	reporter domsvc.Reporter,
	c cache.Service,
	m domrepo.Metrics,
	builder *features.Builder,
	trainer *learning.Trainer,
	hub *ws.Hub,
) *usecase.PipelineRunner {
	r := usecase.NewPipelineRunner(usecase.PipelineDeps{
		Source:      source,
		Mart:        mart,
		Predictions: mart,
		Models:      modelStore,
		Forecasts:   forecasts,
		Publisher:   publisher,
		Notifier:    notifier,
		Reporter:    reporter,
		Locker:      c,
		Metrics:     m,
	}, builder, trainer, cfg.Pipeline.Entities, l)
	r.OnFinish(hub.BroadcastReport)
	return r
}

// ProvideForecastService wires the query side and drops cached forecasts after each run.
func ProvideForecastService(
	cfg *config.Config,
	l *applogger.Logger,
	forecasts domrepo.ForecastLog,
	mart *internalrepo.CHMart,
	modelStore domrepo.ModelStore,
	publisher domrepo.RunPublisher,
	runner *usecase.PipelineRunner,
	c cache.Service,
) *usecase.ForecastService {
	svc := usecase.NewForecastService(forecasts, mart, modelStore, publisher, runner, c, cfg.Cache.ForecastTTL, l)
	runner.OnFinish(svc.Invalidate)
	return svc
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, svc *usecase.ForecastService, hub *ws.Hub, limiter *ratelimit.Limiter) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l,
		[]xhttp.Handler{api.NewForecastsEchoHandler(l, svc, limiter), hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

func ProvideScheduler(cfg *config.Config, runner *usecase.PipelineRunner, l *applogger.Logger) *usecase.Scheduler {
	if !cfg.Scheduler.Enabled {
		return nil
	}
	return usecase.NewScheduler(runner, cfg.Scheduler.At, l)
}

// ProvideKafkaConsumer subscribes to quotes and run requests, nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, quotes *internalrepo.CHQuotes, runner *usecase.PipelineRunner) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithWorkers(cfg.Kafka.Consumer.Workers, cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaQuotesHandler(cfg.Kafka.Topics.Quotes, quotes))
	consumer.RegisterHandler(usecase.NewKafkaRunsHandler(cfg.Kafka.Topics.Runs, runner, l))
	return consumer, nil
}

// ProvideApp creates the application and ships error logs to Kafka when configured.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	producer *pkgkafka.Producer,
	runner *usecase.PipelineRunner,
	httpServer *xhttp.Server,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	scheduler *usecase.Scheduler,
) *server.App {
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, l, runner, httpServer, hub, consumer, scheduler)
}
