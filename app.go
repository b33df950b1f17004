package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"task-assign/backend/internal/cache"
	"task-assign/backend/internal/config"
	"task-assign/backend/internal/consistency"
	"task-assign/backend/internal/database"
	"task-assign/backend/internal/handlers"
	"task-assign/backend/internal/middleware"
	"task-assign/backend/internal/monitoring"
	"task-assign/backend/internal/repositories"
	"task-assign/backend/internal/services"
	"task-assign/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"
)

type application struct {
	config  *config.Config
	pool    *database.DatabasePool
	redis   *redis.Client
	cache   cache.Cache
	worker  *worker.Worker
	limiter *middleware.RateLimiter
	monitor *monitoring.Monitor
	router  *gin.Engine
	server  *http.Server
	cancel  context.CancelFunc
}

func newApplication(cfg *config.Config) (*application, error) {
	app := &application{config: cfg, monitor: monitoring.NewMonitor()}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormLogLevel(cfg.Database.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	app.pool = pool
	if err := pool.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}

	var l2 *cache.RedisCache
	if cfg.Redis.Enabled {
		app.redis = cache.NewRedisClient(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		l2 = cache.NewRedisCacheFromClient(app.redis, cfg.Redis.KeyPrefix)
	}
	app.cache = cache.NewMultiLevelCache(l2, cfg.Redis.LocalTTL)

	tasks := repositories.NewCachedTaskRepository(repositories.NewTaskRepository(pool.DB), app.cache)
	users := repositories.NewCachedUserRepository(repositories.NewUserRepository(pool.DB), app.cache)
	reconciler := consistency.NewReconciler(tasks, users)

	var scheduler consistency.RepairScheduler = consistency.InlineScheduler{Reconciler: reconciler}
	var jobs *worker.JobQueue
	if app.redis != nil && cfg.Worker.Enabled {
		jobs = worker.NewJobQueue(app.redis, cfg.Worker.Queue, cfg.Worker.MaxTries)
		scheduler = worker.NewRepairQueue(jobs)
		app.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  app.redis,
			Queue:        cfg.Worker.Queue,
			PollInterval: cfg.Worker.PollInterval,
			RetryBackoff: cfg.Worker.RetryBackoff,
		})
		worker.RegisterRepairHandlers(app.worker, reconciler)
	}

	deps := services.Dependencies{Tasks: tasks, Users: users, Scheduler: scheduler}
	app.registerChecks(jobs)

	routerConfig := handlers.RouterConfig{
		Tasks:          handlers.NewTaskHandler(services.NewTaskService(deps)),
		Users:          handlers.NewUserHandler(services.NewUserService(deps)),
		Monitor:        app.monitor,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Recovery:       middleware.RecoveryWithLog(),
	}
	if cfg.RateLimit.Enabled {
		app.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin:  cfg.RateLimit.RequestsPerMin,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		routerConfig.RateLimit = middleware.RateLimitMiddleware(app.limiter)
	}
	if cfg.Auth.Enabled {
		routerConfig.Authz = middleware.AuthzMiddleware(middleware.AuthzConfig{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.Issuer,
		})
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	app.router = handlers.NewRouter(routerConfig)

	app.server = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func (a *application) registerChecks(jobs *worker.JobQueue) {
	a.monitor.RegisterHealthCheck("database", a.pool.HealthContext)
	a.monitor.RegisterSource("database", func(ctx context.Context) interface{} {
		return a.pool.Stats()
	})
	a.monitor.RegisterSource("cache", func(ctx context.Context) interface{} {
		return a.cache.Stats()
	})
	if a.redis != nil {
		a.monitor.RegisterHealthCheck("redis", a.cache.Health)
	}
	if jobs != nil {
		a.monitor.RegisterSource("repair_queue", func(ctx context.Context) interface{} {
			size, err := jobs.Size(ctx)
			if err != nil {
				return map[string]interface{}{"error": err.Error()}
			}
			dead, err := jobs.DeadSize(ctx)
			if err != nil {
				return map[string]interface{}{"error": err.Error()}
			}
			return map[string]interface{}{"pending": size, "dead": dead}
		})
	}
}

// start launches the background loops and the HTTP listener. Listener errors other than
// a clean shutdown are sent on the returned channel.
func (a *application) start() <-chan error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.worker != nil {
		a.worker.Start(a.config.Worker.Concurrency)
	}
	if a.limiter != nil {
		go a.limiter.Run(ctx, a.config.RateLimit.CleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] Listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (a *application) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := a.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
