// Command server wires the training compliance API: lifecycle engine,
// stores, sweeper, and the optional redis cache and Kafka audit publisher.
// Without a database URL it runs fully in memory, which is how local
// development and the test suites use it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"traincheck/internal/assessment"
	"traincheck/internal/audit"
	auditpg "traincheck/internal/audit/postgres"
	"traincheck/internal/audit/publisher"
	"traincheck/internal/certificate"
	"traincheck/internal/lifecycle"
	"traincheck/internal/platform/config"
	"traincheck/internal/platform/httpserver"
	"traincheck/internal/platform/logger"
	platformmetrics "traincheck/internal/platform/metrics"
	"traincheck/internal/platform/postgres"
	platformredis "traincheck/internal/platform/redis"
	"traincheck/internal/record"
	"traincheck/internal/record/cache"
	recordpg "traincheck/internal/record/postgres"
	"traincheck/internal/sweeper"
	"traincheck/internal/token"
	httptransport "traincheck/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	// Storage: postgres when configured, in-memory otherwise.
	var (
		records  record.Store
		auditlog audit.Store
		tx       lifecycle.Tx
		health   []func() error
	)
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		records = recordpg.New(db)
		auditlog = auditpg.New(db)
		tx = newPostgresTx(db)
		health = append(health, db.Ping)
		log.Info("using postgres storage")
	} else {
		records = record.NewInMemoryStore()
		auditlog = audit.NewInMemoryStore()
		tx = lifecycle.PassthroughTx{}
		log.Info("using in-memory storage")
	}

	// Optional derived-status cache.
	var statusCache *cache.StatusCache
	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		statusCache = cache.New(redisClient.Client, cfg.DerivedStatusTTL)
		health = append(health, func() error { return redisClient.Health(context.Background()) })
		log.Info("derived-status cache enabled")
	}

	// Optional Kafka audit publisher; the trail itself is already durable in
	// the store, the stream is a best-effort copy for downstream consumers.
	var emitter lifecycle.Emitter = publisher.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.KafkaBrokers...),
			kgo.AllowAutoTopicCreation(),
		)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		if err := publisher.EnsureTopic(ctx, kadm.NewClient(kafkaClient), cfg.AuditTopic); err != nil {
			return err
		}

		pub := publisher.New(kafkaClient, cfg.AuditTopic, log)
		emitter = pub
		g.Go(func() error { return pub.Run(ctx) })
		log.Info("audit stream enabled", "topic", cfg.AuditTopic)
	}

	// Assessment configurations, optionally seeded from file.
	provider := assessment.NewMemoryProvider()
	if cfg.AssessmentSeedFile != "" {
		n, err := loadAssessmentSeed(cfg.AssessmentSeedFile, provider)
		if err != nil {
			return err
		}
		log.Info("assessment seed loaded", "assessments", n)
	}

	engine := lifecycle.New(lifecycle.Config{
		Records:             records,
		Audit:               auditlog,
		Tx:                  tx,
		Assessments:         provider,
		Issuer:              certificate.NewHashIssuer(certificate.NewLocalArtifactStore(cfg.CertificateBaseURL)),
		Emitter:             emitter,
		StatusCache:         statusCache,
		Logger:              log,
		Metrics:             lifecycle.NewMetrics(),
		CertificateValidity: cfg.CertificateValidity,
	})

	sw := sweeper.New(sweeper.Config{
		Engine:     engine,
		Candidates: records,
		Logger:     log,
		Metrics:    sweeper.NewMetrics(),
		Interval:   cfg.SweepInterval,
		BatchSize:  cfg.SweepBatchSize,
	})
	g.Go(func() error { return sw.Run(ctx) })

	tokens := token.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	handler := httptransport.New(engine, auditlog, log, platformmetrics.New(), tokens, health...)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g.Go(func() error {
		log.Info("starting traincheck", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
