// Command server runs the identity vault: encrypted identity record storage
// with password and personal key access paths, plus the operational HTTP
// surface (health probes and metrics).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"idvault/internal/account"
	"idvault/internal/audit"
	"idvault/internal/encryption"
	"idvault/internal/identity"
	"idvault/internal/identity/handler"
	"idvault/internal/identity/metrics"
	"idvault/internal/identity/service"
	"idvault/internal/personalkey"
	"idvault/internal/pii/fingerprint"
	"idvault/internal/piicache"
	"idvault/internal/platform/config"
	"idvault/internal/platform/database"
	"idvault/internal/platform/health"
	"idvault/internal/platform/kafka/producer"
	"idvault/internal/platform/logger"
	"idvault/internal/platform/redis"
	"idvault/internal/throttle"
	transport "idvault/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New()
	log.Info("starting idvault", "environment", cfg.Environment, "addr", cfg.Addr)

	// Infrastructure.
	pool, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		log.Info("database ready")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis ready")
	}

	var kafkaProducer *producer.Producer
	if cfg.Kafka.Brokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return err
		}
		defer kafkaProducer.Close()
		log.Info("kafka producer ready", "topic", cfg.Kafka.Topic)
	}

	// Crypto components.
	fp, err := fingerprint.New(cfg.FingerprintKey)
	if err != nil {
		return err
	}
	encryptor, err := encryption.New(encryption.Config{
		KDF: encryption.KDFParams{
			Time:      cfg.KDF.Time,
			MemoryKiB: cfg.KDF.MemoryK,
			Threads:   cfg.KDF.Threads,
		},
		Pepper: cfg.EncryptionPepper,
	})
	if err != nil {
		return err
	}
	keys, err := personalkey.New(fp)
	if err != nil {
		return err
	}

	// Stores.
	var (
		recordStore  identity.Store
		accountStore account.Store
		auditStore   audit.Store
	)
	if pool != nil {
		recordStore = identity.NewPostgres(pool.DB())
		accountStore = account.NewPostgres(pool.DB())
	} else {
		recordStore = identity.NewMemory()
		accountStore = account.NewMemory()
	}
	switch {
	case kafkaProducer != nil:
		auditStore = audit.NewKafka(kafkaProducer, cfg.Kafka.Topic)
	case pool != nil:
		auditStore = audit.NewPostgres(pool.DB())
	default:
		auditStore = audit.NewMemory()
	}

	var throttleStore throttle.Store
	if redisClient != nil {
		throttleStore = throttle.NewRedis(redisClient)
	} else {
		throttleStore = throttle.NewMemory()
	}

	// Services.
	kdf := encryption.KDFParams{
		Time:      cfg.KDF.Time,
		MemoryKiB: cfg.KDF.MemoryK,
		Threads:   cfg.KDF.Threads,
	}
	accounts, err := account.NewService(accountStore, fp, kdf, account.WithLogger(log))
	if err != nil {
		return err
	}
	throttler, err := throttle.New(throttleStore, throttle.Config{
		Default: throttle.Limit{
			MaxAttempts: cfg.Throttle.MaxAttempts,
			Window:      cfg.Throttle.AttemptWindow,
		},
	}, throttle.WithLogger(log))
	if err != nil {
		return err
	}

	auditPublisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditPublisher.Close()

	svc, err := service.New(recordStore, accounts, throttler, encryptor, fp, keys,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(metrics.New()),
	)
	if err != nil {
		return err
	}

	var cacheStore piicache.Store
	if redisClient != nil {
		cacheStore = piicache.NewRedis(redisClient)
	} else {
		cacheStore = piicache.NewMemory()
	}
	cacher, err := piicache.New(svc, cacheStore, piicache.WithLogger(log))
	if err != nil {
		return err
	}

	// HTTP surface.
	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error { return pool.Health(context.Background()) })
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error { return redisClient.Health(context.Background()) })
	}

	recordsHandler := handler.New(svc, accounts, cacher, log)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           transport.NewRouter(log, healthHandler, recordsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if redisClient != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					redisClient.RecordPoolStats()
				}
			}
		})
	}

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
