package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/jackc/pgx/v5/pgxpool"

	"vaultgate/internal/authz"
	authzconfig "vaultgate/internal/authz/config"
	authzhandler "vaultgate/internal/authz/handler"
	"vaultgate/internal/authz/metrics"
	"vaultgate/internal/platform/config"
	"vaultgate/internal/platform/httpserver"
	"vaultgate/internal/platform/logger"
	platformredis "vaultgate/internal/platform/redis"
	subjectmem "vaultgate/internal/subject/store/memory"
	subjectpg "vaultgate/internal/subject/store/postgres"
	httptransport "vaultgate/internal/transport/http"
	"vaultgate/pkg/platform/audit"
	"vaultgate/pkg/platform/audit/publishers/kafka"
	auditmem "vaultgate/pkg/platform/audit/store/memory"
	auditpg "vaultgate/pkg/platform/audit/store/postgres"
	auditredis "vaultgate/pkg/platform/audit/store/redis"
	"vaultgate/pkg/platform/audit/worker"
	"vaultgate/pkg/platform/middleware/auth"
)

// main wires storage, the audit pipeline, and the authorization engine, then
// runs the HTTP server until interrupted. Business logic lives in internal
// packages; this file only assembles them.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	policy, err := authzconfig.Load(cfg.PolicyPath)
	if err != nil {
		return err
	}

	baseStore, subjects, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	workerOpts := []worker.Option{worker.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaAuditTopic, kafka.WithLogger(log))
		if err != nil {
			return err
		}
		defer publisher.Close()
		if err := publisher.EnsureTopic(ctx, 3, 1); err != nil {
			return err
		}
		workerOpts = append(workerOpts, worker.WithEmitter(publisher))
		log.Info("audit events mirrored to kafka", "topic", cfg.KafkaAuditTopic)
	}

	auditWorker := worker.New(baseStore, workerOpts...)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = auditWorker.Run(workerCtx)
	}()

	engine, err := authz.New(policy, auditWorker,
		authz.WithLogger(log),
		authz.WithMetrics(metrics.New()),
		authz.WithSubjectStore(subjects),
	)
	if err != nil {
		stopWorker()
		<-workerDone
		return err
	}

	authMW := auth.New([]byte(cfg.JWTSigningKey), auditWorker, log)
	handler := authzhandler.New(engine, auditWorker, log)
	router := httptransport.NewRouter(handler, authMW)

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("vaultgate listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stopWorker()
		<-workerDone
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}

	// Stop the worker last so records from in-flight requests still land.
	stopWorker()
	<-workerDone
	return nil
}

// buildStores selects the audit and subject backends from configuration:
// PostgreSQL when a DSN is set, Redis for the audit trail when a URL is set,
// and in-memory fallbacks for development.
func buildStores(ctx context.Context, cfg config.Server, log *slog.Logger) (audit.Store, authz.SubjectStore, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var auditStore audit.Store
	var subjects authz.SubjectStore

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = db.Close() })

		pgStore := auditpg.New(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, err
		}
		auditStore = pgStore

		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanups = append(cleanups, pool.Close)

		subjectStore := subjectpg.NewPostgres(pool)
		if err := subjectStore.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, err
		}
		subjects = subjectStore
		log.Info("using postgres storage")
	}

	if auditStore == nil && cfg.RedisURL != "" {
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		auditStore = auditredis.New(client.Client)
		log.Info("using redis audit storage")
	}

	if auditStore == nil {
		auditStore = auditmem.NewInMemoryStore()
		log.Warn("using in-memory audit storage, events are lost on restart")
	}
	if subjects == nil {
		subjects = subjectmem.NewInMemoryStore(devSubjects()...)
		log.Warn("using in-memory subject store with development seed data")
	}

	return auditStore, subjects, cleanup, nil
}

// devSubjects seeds the in-memory subject store for local development.
func devSubjects() []authz.Subject {
	return []authz.Subject{
		{ID: "alice", Role: authz.RoleClient, KYCStatus: authz.KYCApproved, TwoFactorEnrolled: true, TrustedDevices: []string{"alice-laptop"}},
		{ID: "bob", Role: authz.RoleClient, KYCStatus: authz.KYCPending},
		{ID: "tina", Role: authz.RoleTeller, KYCStatus: authz.KYCApproved, TwoFactorEnrolled: true},
		{ID: "carol", Role: authz.RoleCompliance, KYCStatus: authz.KYCApproved, TwoFactorEnrolled: true},
		{ID: "root", Role: authz.RoleAdmin, KYCStatus: authz.KYCApproved, TwoFactorEnrolled: true},
	}
}
