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

	"go.uber.org/zap"

	"arteng.org/internal/audit"
	"arteng.org/internal/audit/kafkasink"
	"arteng.org/internal/auth"
	"arteng.org/internal/config"
	"arteng.org/internal/httpapi"
	"arteng.org/internal/identity"
	"arteng.org/internal/migrate"
	"arteng.org/internal/obs"
	"arteng.org/internal/ratelimit"
	"arteng.org/internal/retention"
	"arteng.org/internal/store"
	"arteng.org/internal/store/pg"
	"arteng.org/internal/store/sqlite"
	"arteng.org/internal/stream"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.TracingEnabled {
		shutdownTracing = obs.InitTracing("arteng-api", cfg.Version, cfg.TracingSampleRatio)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	auditStore, closeStore, err := openStore(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := stream.New()
	sinks := []audit.Sink{hub}
	var exporter *audit.AsyncSink
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		pub := kafkasink.New(brokers, cfg.KafkaAuditTopic)
		defer func() { _ = pub.Close() }()
		exporter = audit.NewAsyncSink(pub, 1024, 5*time.Second, log)
		sinks = append(sinks, exporter)
		log.Info("audit_export_enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaAuditTopic))
	}

	trail := audit.New(auditStore,
		audit.WithWriteTimeout(cfg.AuditWriteTimeout),
		audit.WithSinks(sinks...),
		audit.WithLogger(log),
	)

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	directory := identity.NewHTTPDirectory(cfg.IdentityAPIURL, cfg.IdentitySecretKey, &http.Client{Timeout: cfg.IdentityTimeout})
	gate := auth.NewGate(verifier, directory, trail,
		auth.WithIdentityTimeout(cfg.IdentityTimeout),
		auth.WithGateLogger(log),
	)

	proxies, err := auth.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	ready := httpapi.ReadyProbe{Checks: map[string]httpapi.Pinger{}}
	if p, ok := auditStore.(httpapi.Pinger); ok {
		ready.Checks["database"] = p
	}

	var apiLimiter, adminLimiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.ParseRedisURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		apiLimiter = ratelimit.NewRedisLimiter(rdb, "api", cfg.RateLimitAPIMax, cfg.RateLimitAPIWindow)
		adminLimiter = ratelimit.NewRedisLimiter(rdb, "admin", cfg.RateLimitAdminMax, cfg.RateLimitAdminWindow)
		ready.Checks["redis"] = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		local := ratelimit.NewLocalLimiter(cfg.RateLimitAPIMax, cfg.RateLimitAPIWindow)
		defer local.Close()
		localAdmin := ratelimit.NewLocalLimiter(cfg.RateLimitAdminMax, cfg.RateLimitAdminWindow)
		defer localAdmin.Close()
		apiLimiter, adminLimiter = local, localAdmin
	}

	sched, err := retention.New(trail, cfg.AuditRetentionSchedule, cfg.AuditRetentionDays, log)
	if err != nil {
		return err
	}
	sched.Start()
	log.Info("retention_scheduled", zap.Int("days", cfg.AuditRetentionDays), zap.Time("next", sched.Next()))

	api := httpapi.New(httpapi.Deps{
		Trail:        trail,
		Gate:         gate,
		Hub:          hub,
		Ready:        ready,
		APILimiter:   apiLimiter,
		AdminLimiter: adminLimiter,
		Production:   cfg.IsProduction(),
		Version:      cfg.Version,
		CORSOrigins:  cfg.CORSOriginList(),
		MaxBodyBytes: cfg.MaxBodyBytes,

		TrustedProxies: proxies,
	})

	srv := httpapi.NewServer(cfg.HTTPAddr, api.Handler())

	log.Info("starting", zap.String("version", cfg.Version), zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
	_, _ = trail.LogSystemEvent(context.Background(), fmt.Sprintf("Admin API %s started on %s", cfg.Version, srv.Addr))

	// graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case <-stop:
	case serveErr = <-errCh:
	}
	log.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http_shutdown_incomplete", zap.Error(err))
	}
	sched.Stop(ctx)
	if exporter != nil {
		exporter.Close()
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warn("tracing_shutdown_failed", zap.Error(err))
	}
	log.Info("stopped")
	return serveErr
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (audit.Store, func(), error) {
	switch cfg.StoreKind() {
	case config.StorePostgres:
		db, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		applied, err := migrate.NewManager(db, migrate.Postgres()).Up(ctx)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("audit_store_ready", zap.String("kind", "postgres"), zap.Strings("migrations", applied))
		s := pg.NewAuditStore(db)
		return s, func() { _ = s.Close() }, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		applied, err := migrate.NewManager(db, migrate.SQLite(), migrate.WithPlaceholder(store.QuestionPlaceholder)).Up(ctx)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("audit_store_ready", zap.String("kind", "sqlite"), zap.String("path", cfg.SQLitePath()), zap.Strings("migrations", applied))
		s := sqlite.NewAuditStore(db)
		return s, func() { _ = s.Close() }, nil
	case config.StoreMemory:
		log.Warn("audit_store_ready", zap.String("kind", "memory"))
		return audit.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported DATABASE_URL %q", cfg.DatabaseURL)
	}
}

func newVerifier(cfg config.Config) (identity.Verifier, error) {
	opts := []identity.VerifierOption{identity.WithAuthorizedParties(cfg.AuthorizedPartyList()...)}
	switch {
	case cfg.IdentityJWTPublicKey != "":
		return identity.NewRS256Verifier(cfg.IdentityJWTPublicKey, opts...)
	case cfg.IdentityJWTSecret != "":
		return identity.NewHS256Verifier(cfg.IdentityJWTSecret, opts...)
	default:
		// Without key material every credential is rejected; requests are
		// still audited as invalid tokens.
		return identity.VerifierFunc(func(context.Context, string) (identity.Session, error) {
			return identity.Session{}, fmt.Errorf("%w: no verification key configured", identity.ErrInvalidCredential)
		}), nil
	}
}
