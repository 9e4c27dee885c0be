package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/config"
	"github.com/Poneaswaran/College-Management-System-Backend/graphql"
	"github.com/Poneaswaran/College-Management-System-Backend/handlers"
	"github.com/Poneaswaran/College-Management-System-Backend/middleware"
	"github.com/Poneaswaran/College-Management-System-Backend/passwords"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories/postgres"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories/rediscache"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
	"github.com/Poneaswaran/College-Management-System-Backend/services/audit"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
)

// auditStopTimeout bounds how long shutdown waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Stores are the backing stores the services run on. SQL and Cache are
// optional; SQL is only used for readiness checks.
type Stores struct {
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager
	SQL       *sql.DB
	Cache     *rediscache.RevocationCache
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB
	Redis  *redis.Client

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Credentials
	Codec  *tokens.Codec
	Hasher *passwords.Hasher

	// Services
	Audit        *audit.AuditService
	Revocations  *services.RevocationService
	Sessions     *services.SessionService
	GuardianOTPs *services.GuardianOTPService

	// Transport
	Resolver       *authn.Resolver
	AuthMiddleware *middleware.AuthMiddleware
	Registry       *graphql.Registry
	Executor       *graphql.Executor
	GraphQLHandler *handlers.GraphQLHandler
	HealthHandler  *handlers.HealthHandler
	AdminHandler   *handlers.AdminHandler

	revocationCache *rediscache.RevocationCache
}

// NewDependencies opens PostgreSQL and, when configured, Redis, then wires
// every service on top of them.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize the optional revocation cache
	if err := deps.initRedis(ctx, cfg); err != nil {
		_ = deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	stores := Stores{
		Repos:     deps.RepoFactory.NewRepositories(),
		TxManager: deps.RepoFactory.GetTransactionManager(),
		SQL:       deps.DB.DB,
		Cache:     deps.revocationCache,
	}
	if err := deps.initServices(stores); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithStores wires the services over already opened stores.
// Tests use it with the in-memory store.
func NewDependenciesWithStores(cfg *config.Config, logger *zap.Logger, stores Stores) (*Dependencies, error) {
	deps := &Dependencies{
		Config:          cfg,
		Logger:          logger,
		revocationCache: stores.Cache,
	}
	if err := deps.initServices(stores); err != nil {
		return nil, err
	}
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// initRedis connects the revocation cache when REDIS_ADDR is set
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		d.Logger.Info("redis not configured, revocation lookups use postgres only")
		return nil
	}

	client, err := rediscache.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	d.Redis = client
	d.revocationCache = rediscache.NewRevocationCache(client)
	d.Logger.Info("revocation cache connected", zap.String("addr", cfg.Redis.Addr))
	return nil
}

// initServices builds credentials, services and transport over stores
func (d *Dependencies) initServices(stores Stores) error {
	cfg := d.Config
	d.Repos = stores.Repos
	d.TxManager = stores.TxManager

	codec, err := tokens.NewCodec(tokens.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	d.Codec = codec
	d.Hasher = passwords.NewHasher(passwords.DefaultParams)

	d.Audit = audit.NewAuditService(stores.Repos.AuthEvents, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	opts := []services.Option{services.WithEventRecorder(d.Audit)}

	// A nil *RevocationCache must not become a non-nil interface
	var cache services.RevocationCache
	var cachePinger handlers.Pinger
	if stores.Cache != nil {
		cache = stores.Cache
		cachePinger = stores.Cache
	}

	d.Revocations = services.NewRevocationService(stores.Repos, cache, d.Logger, opts...)
	d.Sessions = services.NewSessionService(stores.Repos, stores.TxManager, codec, d.Hasher, d.Revocations, d.Logger, opts...)
	d.GuardianOTPs = services.NewGuardianOTPService(
		stores.Repos,
		d.Sessions,
		services.NewLoggingOTPSender(d.Logger, cfg.IsDevelopment()),
		cfg.Auth.OTPTTL,
		cfg.Auth.OTPMaxAttempts,
		d.Logger,
		opts...,
	)

	d.Resolver = authn.NewResolver(codec, d.Revocations, stores.Repos.Principals, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Resolver, d.Logger)

	d.Registry = graphql.NewRegistry()
	if err := graphql.RegisterAuthOperations(d.Registry, d.Sessions, d.GuardianOTPs); err != nil {
		return fmt.Errorf("failed to register auth operations: %w", err)
	}
	d.Executor = graphql.NewExecutor(d.Registry, d.Logger)
	d.GraphQLHandler = handlers.NewGraphQLHandler(d.Executor, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(stores.SQL, cachePinger, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Revocations, d.Logger)

	d.Logger.Info("services initialized",
		zap.Strings("operations", d.Registry.Names()),
		zap.Bool("revocation_cache", cache != nil))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Flush queued audit events before the database goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
