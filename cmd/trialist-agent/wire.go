package main

import (
	"context"
	"fmt"
	"time"

	"trialist-agent/internal/agent"
	"trialist-agent/internal/analytics"
	"trialist-agent/internal/calendar"
	"trialist-agent/internal/common/aws"
	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/database"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/observability"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/knowledge"
	"trialist-agent/internal/resilience"
	"trialist-agent/internal/scheduling"
	"trialist-agent/internal/transport/httpapi"
	"trialist-agent/pkg/registry"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// retryWithBackoff retries a startup connection with doubling delays.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// backends holds the long-lived clients. Every field may be nil when the
// matching section is not configured.
type backends struct {
	redis    *database.RedisClient
	postgres *database.PostgresClient
	es       *database.ElasticsearchClient
	closers  []func() error
	checks   map[string]httpapi.Check
}

func (b *backends) close(log logger.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn("close failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func connect(ctx context.Context, cfg *config.Config, log logger.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]httpapi.Check)}

	if cfg.Database.Redis.Address != "" {
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return b.redis.Ping(ctx)
		}, 10, 2*time.Second, log, "redis connection")
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, b.redis.Close)
		b.checks["redis"] = b.redis.Ping
		log.Info("redis connected", map[string]interface{}{"address": cfg.Database.Redis.Address})
	}

	if cfg.Database.Postgres.Enabled() {
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.postgres, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return b.postgres.Ping(ctx)
		}, 15, 2*time.Second, log, "postgres connection")
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, b.postgres.Close)
		b.checks["postgres"] = b.postgres.Ping
		log.Info("postgres connected", nil)
	}

	if len(cfg.Database.Elasticsearch.Addresses) > 0 {
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return b.es.Ping(ctx)
		}, 15, 2*time.Second, log, "elasticsearch connection")
		if err != nil {
			return b, err
		}
		b.checks["elasticsearch"] = b.es.Ping
		log.Info("elasticsearch connected", nil)
	}
	return b, nil
}

func newSearcher(cfg *config.Config, b *backends, log logger.Logger) knowledge.Searcher {
	if cfg.Knowledge.Backend == "elasticsearch" && b.es != nil {
		return knowledge.NewElasticsearchSearcher(b.es.Client, cfg.Knowledge.Index, log)
	}
	if cfg.Knowledge.APIKey == "" {
		log.Warn("knowledge search disabled: no api key", nil)
		return nil
	}
	return knowledge.NewHTTPSearcher(cfg.Knowledge, log)
}

func newScheduler(ctx context.Context, cfg *config.Config, log logger.Logger) (*scheduling.Scheduler, error) {
	if cfg.Calendar.Token == "" || cfg.Calendar.CalendarID == "" {
		log.Warn("meeting booking disabled: calendar not configured", nil)
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar timezone %q: %w", cfg.Calendar.Timezone, err)
	}

	var followUp scheduling.FollowUp
	if cfg.Scheduling.FollowUp && cfg.AWS.SES.FromEmail != "" && cfg.Scheduling.SalesEmail != "" {
		sesClient, err := aws.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		followUp = scheduling.NewEmailFollowUp(sesClient, cfg.AWS.SES.FromEmail, cfg.Scheduling.SalesEmail, log)
	}

	return scheduling.NewScheduler(
		calendar.NewHTTPCreator(cfg.Calendar, log),
		scheduling.NewSlotResolver(loc, time.Now, cfg.Scheduling.DefaultHour, cfg.Scheduling.DefaultMinute),
		followUp,
		scheduling.Config{
			Duration:   time.Duration(cfg.Calendar.DurationMinutes) * time.Minute,
			SalesEmail: cfg.Scheduling.SalesEmail,
		},
		log,
	), nil
}

func newExporter(ctx context.Context, cfg *config.Config, b *backends, log logger.Logger) (*analytics.Exporter, error) {
	sinks := make([]analytics.Sink, 0, len(cfg.Analytics.Sinks))
	for _, name := range cfg.Analytics.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, analytics.NewLogSink(log))
		case "sns":
			client, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, analytics.NewSNSSink(client, cfg.Analytics.TopicARN))
		case "kafka":
			writer := analytics.NewKafkaWriter(cfg.Analytics.KafkaBrokers, cfg.Analytics.KafkaTopic)
			b.closers = append(b.closers, writer.Close)
			sinks = append(sinks, analytics.NewKafkaSink(writer))
		case "postgres":
			if b.postgres == nil {
				return nil, fmt.Errorf("postgres sink requires database.postgres")
			}
			sinks = append(sinks, analytics.NewPostgresSink(b.postgres.DB))
		}
	}

	// sink breakers are process-wide, unlike the per-session ones
	rc := cfg.Resilience
	responder := resilience.NewResponder(
		resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: rc.FailureThreshold,
			RecoveryTimeout:  config.GetDuration(rc.RecoveryTimeout),
		}, log),
		resilience.NewExecutor(resilience.RetryPolicy{
			MaxRetries: rc.Retries(),
			BaseDelay:  config.GetDuration(rc.BaseDelay),
			MaxDelay:   config.GetDuration(rc.MaxDelay),
			Jitter:     !rc.DisableJitter,
		}, log),
		resilience.NewPhrases(rc.PhraseSeed),
		log,
	)
	return analytics.NewExporter(sinks, responder, analytics.Config{
		HotLeadTeam:   cfg.Analytics.HotLeadTeam,
		HotLeadVolume: cfg.Analytics.HotLeadVolume,
		Timeout:       config.GetDuration(cfg.Analytics.Timeout),
	}, log)
}

func redisConnOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
}

func serve(ctx context.Context, cfg *config.Config, withWorker bool, log logger.Logger) error {
	b, err := connect(ctx, cfg, log)
	defer b.close(log)
	if err != nil {
		return err
	}

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())

	scheduler, err := newScheduler(ctx, cfg, log)
	if err != nil {
		return err
	}
	exporter, err := newExporter(ctx, cfg, b, log)
	if err != nil {
		return err
	}

	var store conversation.CheckpointStore
	if b.redis != nil {
		store = conversation.NewRedisCheckpointStore(b.redis.Client, config.GetDuration(cfg.Session.CheckpointTTL), log)
	}

	var dispatcher analytics.Dispatcher
	if cfg.Analytics.UseQueue {
		client := asynq.NewClient(redisConnOpt(cfg.Database.Redis))
		b.closers = append(b.closers, client.Close)
		dispatcher = analytics.NewQueueDispatcher(client, cfg.Analytics.Queue, log)
	} else {
		direct := analytics.NewDirectDispatcher(exporter)
		defer direct.Wait()
		dispatcher = direct
	}

	var catalog *registry.Catalog
	if cfg.App.ToolCatalog != "" {
		if catalog, err = registry.LoadCatalog(cfg.App.ToolCatalog); err != nil {
			return err
		}
		if err := catalog.Validate(); err != nil {
			return fmt.Errorf("tool catalog %s: %w", cfg.App.ToolCatalog, err)
		}
	}

	builder := agent.NewBuilder(agent.Dependencies{
		Resilience:    cfg.Resilience,
		Searcher:      newSearcher(cfg, b, log),
		Scheduler:     scheduler,
		Catalog:       catalog,
		Observability: obs,
		HotLeadTeam:   cfg.Analytics.HotLeadTeam,
		HotLeadVolume: cfg.Analytics.HotLeadVolume,
		Logger:        log,
	})
	manager := agent.NewManager(builder, store, exporter, dispatcher, log)

	router := httpapi.NewRouter(httpapi.NewHandler(manager, b.checks, log), httpapi.RouterOptions{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpapi.Serve(gctx, cfg.Server, router, log) })
	if withWorker && cfg.Analytics.UseQueue {
		worker := analytics.NewQueueWorker(redisConnOpt(cfg.Database.Redis), cfg.Analytics.Queue, 0, exporter, log)
		g.Go(func() error { return worker.Run(gctx) })
	}
	return g.Wait()
}

func runAnalyticsWorker(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if !cfg.Analytics.UseQueue {
		return fmt.Errorf("analytics.use_queue is off; exports are delivered in-process by serve")
	}
	b, err := connect(ctx, cfg, log)
	defer b.close(log)
	if err != nil {
		return err
	}
	exporter, err := newExporter(ctx, cfg, b, log)
	if err != nil {
		return err
	}
	return analytics.NewQueueWorker(redisConnOpt(cfg.Database.Redis), cfg.Analytics.Queue, 0, exporter, log).Run(ctx)
}
