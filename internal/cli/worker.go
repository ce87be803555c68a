package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func newWorkerCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume listing batches from Kafka and emit dedup events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			w := &worker{app: a, skipMigrations: skipMigrations, health: health.NewChecker(cmd.Root().Version)}
			return w.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply schema migrations on startup")

	return cmd
}

type worker struct {
	*app
	skipMigrations bool

	db              *database.DatabaseInstance
	redis           *redis.Client
	producer        *kafka.Producer
	consumer        *kafka.Consumer
	metricsServer   *http.Server
	health          *health.Checker
	shutdownTracing func(context.Context) error
}

func (w *worker) run(ctx context.Context) error {
	s := startup.NewStartup(w.logger, w.cfg.StartupMaxAttempts)
	for _, dep := range w.dependencies() {
		s.AddDependency(dep)
	}

	if err := s.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Stop(stopCtx)
		return err
	}

	w.logger.WithFields(map[string]any{
		"input_topic":  w.cfg.KafkaInputTopic,
		"output_topic": w.cfg.KafkaOutputTopic,
		"metrics_addr": w.cfg.MetricsAddr,
	}).Info("Clover worker running")
	w.health.SetReady(true)

	<-ctx.Done()
	w.logger.Info("Shutting down clover worker")
	w.health.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

func (w *worker) dependencies() []startup.Dependency {
	return []startup.Dependency{
		&startup.Func{Name: "tracing", StartFunc: w.startTracing, StopFunc: w.stopTracing},
		&startup.Func{Name: "metrics", StartFunc: w.startMetrics, StopFunc: w.stopMetrics},
		&startup.Func{Name: "postgres", StartFunc: w.startPostgres, StopFunc: w.stopPostgres},
		&startup.Func{Name: "redis", StartFunc: w.startRedis, StopFunc: w.stopRedis},
		&startup.Func{
			Name:      "kafka",
			Requires:  []string{"tracing", "metrics", "postgres", "redis"},
			StartFunc: w.startKafka,
			StopFunc:  w.stopKafka,
		},
	}
}

func (w *worker) startTracing(ctx context.Context) error {
	if !w.cfg.TracingEnabled {
		return nil
	}
	shutdown, err := tracing.Setup(ctx, w.cfg.Tracing(), w.cfg.OTLP())
	if err != nil {
		return err
	}
	w.shutdownTracing = shutdown
	return nil
}

func (w *worker) stopTracing(ctx context.Context) error {
	if w.shutdownTracing == nil {
		return nil
	}
	return w.shutdownTracing(ctx)
}

func (w *worker) startMetrics(context.Context) error {
	if w.cfg.MetricsAddr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", w.cfg.MetricsAddr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	w.health.Register(mux)

	w.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := w.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	return nil
}

func (w *worker) stopMetrics(ctx context.Context) error {
	if w.metricsServer == nil {
		return nil
	}
	return w.metricsServer.Shutdown(ctx)
}

func (w *worker) startPostgres(ctx context.Context) error {
	db, err := w.connectDatabase(ctx)
	if err != nil {
		return err
	}
	if !w.skipMigrations {
		if err := w.migrate(db, w.cfg.Migration()); err != nil {
			_ = db.Close()
			return err
		}
	}
	w.db = db
	w.health.AddCheck("postgres", db.PingContext, true)
	return nil
}

func (w *worker) stopPostgres(context.Context) error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *worker) startRedis(ctx context.Context) error {
	if !w.cfg.BlockCacheEnabled {
		return nil
	}
	client, err := redis.NewClient(ctx, w.cfg.Redis(), w.logger)
	if err != nil {
		return err
	}
	w.redis = client
	// candidate cache failures fall through to postgres
	w.health.AddCheck("redis", client.Ping, false)
	return nil
}

func (w *worker) stopRedis(context.Context) error {
	if w.redis == nil {
		return nil
	}
	return w.redis.Close()
}

func (w *worker) startKafka(ctx context.Context) error {
	var cache blocking.CandidateCache
	if w.redis != nil {
		cache = blocking.NewRedisCache(w.redis, w.cfg.BlockCacheTTL, w.logger)
	}

	dedupSvc, err := w.newDedupService(w.db, cache)
	if err != nil {
		return err
	}

	w.producer = kafka.NewProducer(w.cfg.Producer(), w.logger)
	proc := processor.NewProcessor(w.cfg.Processor(), dedupSvc, events.NewEmitter(w.producer, w.logger), w.logger)
	w.consumer = kafka.NewConsumer(w.cfg.Consumer(), w.logger, proc.MessageHandler())

	w.health.AddCheck("kafka", func(context.Context) error {
		if !w.consumer.Health() {
			return errors.New("consumer not running")
		}
		return nil
	}, true)
	return w.consumer.Start(ctx)
}

func (w *worker) stopKafka(context.Context) error {
	var errs []error
	if w.consumer != nil {
		errs = append(errs, w.consumer.Stop())
	}
	if w.producer != nil {
		errs = append(errs, w.producer.Close())
	}
	return errors.Join(errs...)
}
