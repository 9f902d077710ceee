package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lexvault/lexvault/pkg/api"
	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/config"
	"github.com/lexvault/lexvault/pkg/directory"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/ghost"
	"github.com/lexvault/lexvault/pkg/guard"
	"github.com/lexvault/lexvault/pkg/identity"
	"github.com/lexvault/lexvault/pkg/observability"
	"github.com/lexvault/lexvault/pkg/session"
	"github.com/lexvault/lexvault/pkg/sso"
	"github.com/lexvault/lexvault/pkg/token"
)

func main() {
	startup := logrus.New()
	startup.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)
	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		startup.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		startup.Fatalf("Failed to connect to database: %v", err)
	}
	startup.Info("Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			startup.Fatalf("Failed to connect to Redis: %v", err)
		}
		startup.Infof("Connected to Redis at %s", cfg.Redis.Addr)
	} else {
		startup.Warn("Redis not configured, using in-process session and revocation stores")
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Audit events go to structured logs always and to Postgres durably.
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		startup.Fatalf("Failed to initialize audit store: %v", err)
	}
	auditLogger := audit.NewMultiLogger(dbAudit)

	var revocations token.RevocationStore
	var sessions session.Store
	if redisClient != nil {
		revocations = token.NewRedisRevocationStore(redisClient, "lexvault:revoked")
		sessions = session.NewRedisStore(redisClient, "lexvault:session", cfg.Auth.SessionTTL)
	} else {
		revocations = token.NewMemoryRevocationStore()
		sessions = session.NewMemoryStore(cfg.Auth.SessionTTL)
	}

	tokens, err := token.NewService([]byte(cfg.Auth.TokenSecret), revocations,
		token.WithIssuer(cfg.Auth.TokenIssuer),
		token.WithAccessTTL(cfg.Auth.AccessTokenTTL),
		token.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
		token.WithAdminTTL(cfg.Auth.AdminTokenTTL),
	)
	if err != nil {
		startup.Fatalf("Failed to initialize token service: %v", err)
	}

	users := directory.NewPostgresStore(db)
	firmSvc, err := firms.NewService(firms.NewPostgresStore(db))
	if err != nil {
		startup.Fatalf("Failed to initialize firm service: %v", err)
	}

	ghostStore := ghost.NewPostgresStore(db)
	if err := ghostStore.EnsureSchema(ctx); err != nil {
		startup.Fatalf("Failed to ensure ghost session schema: %v", err)
	}
	ghosts := ghost.NewManager(ghostStore, firmSvc, auditLogger,
		ghost.WithMaxDuration(cfg.Ghost.MaxDuration),
		ghost.WithMetrics(metrics),
	)

	extractor := identity.NewExtractor(tokens, sessions, users, firmSvc, ghosts)

	var providers []sso.Provider
	if cfg.SSO.Enabled {
		provider, err := sso.NewOIDCProvider(ctx, "oidc", cfg.SSO)
		if err != nil {
			startup.Fatalf("Failed to initialize SSO provider: %v", err)
		}
		providers = append(providers, provider)
		startup.Infof("SSO enabled against %s", cfg.SSO.IssuerURL)
	}

	server, err := api.NewServer(api.Deps{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Tokens:    tokens,
		Sessions:  sessions,
		Users:     users,
		Firms:     firmSvc,
		Ghosts:    ghosts,
		Extractor: extractor,
		Guard:     guard.New(auditLogger, metrics),
		Audit:     auditLogger,
		SSO:       providers,
	})
	if err != nil {
		startup.Fatalf("Failed to build API server: %v", err)
	}

	// Health and metrics on a separate listener so probes never contend
	// with API traffic.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthSrv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		startup.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startup.Fatalf("Health server failed: %v", err)
		}
	}()

	sampleCtx, stopSampling := context.WithCancel(ctx)
	if metrics != nil {
		go samplePoolMetrics(sampleCtx, logger, metrics, db, revocations)
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		startup.Infof("LexVault auth service listening on :%s (%s)", cfg.Server.Port, cfg.Server.Environment)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startup.Fatalf("API server failed: %v", err)
		}
	}()

	err = observability.GracefulShutdown(logger, apiSrv,
		func(ctx context.Context) error {
			stopSampling()
			return healthSrv.Shutdown(ctx)
		},
		func(context.Context) error { return db.Close() },
		func(context.Context) error {
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		},
	)
	if err != nil {
		startup.Fatalf("Shutdown error: %v", err)
	}
}

// samplePoolMetrics keeps the connection-pool and revocation-set gauges
// current. The in-process revocation store also gets its expired entries
// purged here; the Redis store expires entries on its own.
func samplePoolMetrics(ctx context.Context, logger *observability.Logger, metrics *observability.Metrics, db *sql.DB, revocations token.RevocationStore) {
	defer observability.RecoverPanic(logger, "metrics sampler")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))

			if mem, ok := revocations.(*token.MemoryRevocationStore); ok {
				if _, err := mem.Purge(ctx, time.Now()); err != nil {
					logger.WithError(err).Warn("revocation purge failed")
				}
				metrics.RevocationSetSize.Set(float64(mem.Len()))
			}
		}
	}
}
