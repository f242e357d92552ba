package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/loopcraft/iamd/internal/adapter/cache"
	"github.com/loopcraft/iamd/internal/bootstrap"
	"github.com/loopcraft/iamd/internal/config"
	httptransport "github.com/loopcraft/iamd/internal/http"
	"github.com/loopcraft/iamd/internal/http/handler"
	"github.com/loopcraft/iamd/internal/http/middleware"
	"github.com/loopcraft/iamd/internal/identity"
	"github.com/loopcraft/iamd/internal/mfa"
	"github.com/loopcraft/iamd/internal/notify"
	"github.com/loopcraft/iamd/internal/otp"
	"github.com/loopcraft/iamd/internal/repository"
	"github.com/loopcraft/iamd/internal/server"
	"github.com/loopcraft/iamd/internal/service"
	"github.com/loopcraft/iamd/internal/telemetry"
	"github.com/loopcraft/iamd/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newRoleRepository,
			newPermissionRepository,
			newKeyRepository,
			newRedisClient,
			newOTPStore,
			newOTPRegistry,
			newKeyManager,
			newTokenService,
			newMFAManager,
			newMFAService,
			newSSOVerifier,
			newNotifier,
			newRateLimiter,
			service.NewAuthService,
			service.NewIAMService,
			newAuthHandler,
			handler.NewIAMHandler,
			newAuthMiddleware,
			newGuard,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, ensureSigningKey, bootstrap.EnsureSeed, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newRoleRepository(pool *pgxpool.Pool) repository.RoleRepository {
	return repository.NewPostgresRoleRepo(pool)
}

func newPermissionRepository(pool *pgxpool.Pool) repository.PermissionRepository {
	return repository.NewPostgresPermissionRepo(pool)
}

func newKeyRepository(pool *pgxpool.Pool) repository.KeyRepository {
	return repository.NewPostgresKeyRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newOTPStore(client redis.UniversalClient) repository.OTPStore {
	return cacheadapter.NewRedisOTPStore(client)
}

func newOTPRegistry(store repository.OTPStore, cfg config.Config, logger *zap.Logger) *otp.Registry {
	return otp.NewRegistry(store, cfg.OTPTTL, logger)
}

func newKeyManager(repo repository.KeyRepository) *token.KeyManager {
	return token.NewKeyManager(repo)
}

func newTokenService(manager *token.KeyManager, cfg config.Config) *token.Service {
	return token.NewService(manager, cfg.TokenIssuer, cfg.SessionTokenTTL)
}

func newMFAManager(cfg config.Config) *mfa.Manager {
	return mfa.NewManager(cfg.TOTPIssuer)
}

func newMFAService(users repository.UserRepository, manager *mfa.Manager, logger *zap.Logger) *mfa.Service {
	return mfa.NewService(users, manager, logger)
}

func newSSOVerifier(cfg config.Config) identity.SSOVerifier {
	return identity.NewHTTPVerifier(nil, cfg.SSOUserinfoURL)
}

func newNotifier(logger *zap.Logger) notify.Dispatcher {
	return notify.NewLogDispatcher(logger)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthHandler(auth *service.AuthService, factors *mfa.Service, cfg config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, factors, cfg)
}

func newAuthMiddleware(tokens *token.Service, cfg config.Config) *middleware.Auth {
	return &middleware.Auth{Tokens: tokens, CookieName: cfg.SessionCookieName}
}

func newGuard(roles repository.RoleRepository) *middleware.Guard {
	return &middleware.Guard{Roles: roles}
}

func ensureSigningKey(lc fx.Lifecycle, manager *token.KeyManager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := manager.EnsureSigningKey(ctx); err != nil {
				return fmt.Errorf("ensure signing key: %w", err)
			}
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
