// Package main - точка входа Worker процесса Study Hub.
//
// Worker держит реестр леджеров прогресса, периодически перестраивает
// учебную неделю (перенос пропущенных занятий) и отдаёт ops-эндпоинты:
// /healthz, /readyz, /metrics и таблицу фоновых задач.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-hub/config"
	"github.com/alem-hub/study-hub/internal/application/ledger"
	"github.com/alem-hub/study-hub/internal/application/session"
	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-hub/internal/infrastructure/persistence/postgres"
	rediscache "github.com/alem-hub/study-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-hub/internal/infrastructure/scheduler/jobs"
	opshttp "github.com/alem-hub/study-hub/internal/interface/http"
	"github.com/alem-hub/study-hub/internal/interface/http/handlers"
	"github.com/alem-hub/study-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	configPath := os.Getenv("STUDYHUB_CONFIG")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// eventBus объединяет публикацию, подписку и закрытие шины событий.
type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

// storage - набор хранилищ, выбранный по конфигурации.
type storage struct {
	progress   progress.Repository
	attendance progress.AttendanceRepository
	calendar   calendar.Store
	classes    calendar.ClassLookup
}

func run(ctx context.Context, configPath string) (err error) {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting Study Hub worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("timezone", cfg.App.Location.String()),
	)

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}
	health := handlers.NewHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	store := storage{}
	if cfg.UseDatabase() {
		log.Info("connecting to database...")
		conn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolSettings{
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()

		if cfg.Database.AutoMigrate {
			log.Info("running database migrations...")
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		calendarRepo := postgres.NewCalendarRepository(conn)
		store = storage{
			progress:   postgres.NewProgressRepository(conn),
			attendance: postgres.NewAttendanceRepository(conn),
			calendar:   calendarRepo,
			classes:    calendarRepo,
		}
		health.AddCheck("database", handlers.PingCheck(conn))
		log.Info("database connected")
	} else {
		log.Warn("DATABASE_URL is not set, using in-memory storage")
		calendarStore := memory.NewCalendarStore()
		store = storage{
			progress:   memory.NewProgressRepository(),
			attendance: memory.NewAttendanceRepository(),
			calendar:   calendarStore,
			classes:    calendarStore,
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ REDIS (опционально) И EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	localBus := messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		Metrics:        m,
	}

	var bus eventBus
	if cfg.UseRedis() {
		log.Info("connecting to redis...")
		cache, err := rediscache.NewCache(ctx, redisConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing redis connection...")
			_ = cache.Close()
		}()

		store.progress = rediscache.NewProgressCache(store.progress, cache, rediscache.ProgressCacheConfig{
			TTL:     cfg.Redis.ProgressTTL,
			Logger:  log,
			Metrics: m,
			Breaker: rediscache.NewCacheBreaker(log),
		})

		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         rediscache.NewPubSub(cache.Client()),
			ChannelName:    rediscache.PubSubChannel("events"),
			LocalBusConfig: localBus,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
		health.AddCheck("redis", handlers.PingCheck(cache))
		log.Info("redis connected")
	} else {
		bus = messaging.NewInMemoryEventBus(localBus)
	}
	defer func() {
		if cerr := bus.Close(); cerr != nil {
			log.Warn("event bus close failed", logger.Err(cerr))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЛЕДЖЕРЫ ПРОГРЕССА И ОРКЕСТРАТОР СЕССИЙ
	// ─────────────────────────────────────────────────────────────────────────
	registry := ledger.NewRegistry(store.progress, bus, ledger.Config{
		SyncMaxAttempts:  cfg.Ledger.SyncMaxAttempts,
		SyncInitialDelay: cfg.Ledger.SyncInitialDelay,
		QueueSize:        cfg.Ledger.QueueSize,
		Location:         cfg.App.Location,
		Logger:           log,
		Metrics:          m,
	})

	orchestrator := session.NewOrchestrator(registry, store.calendar, store.classes, store.attendance, bus, session.Config{
		Rewards: session.RewardWeights{
			AttendancePoints: cfg.Rewards.AttendancePoints,
			AttendanceCoins:  cfg.Rewards.AttendanceCoins,
			CompletionPoints: cfg.Rewards.CompletionPoints,
			CompletionCoins:  cfg.Rewards.CompletionCoins,
			FocusPoints:      cfg.Rewards.FocusPoints,
			FocusCoins:       cfg.Rewards.FocusCoins,
		},
		Focus: session.FocusConfig{
			Work:           cfg.Focus.Work,
			ShortBreak:     cfg.Focus.ShortBreak,
			LongBreak:      cfg.Focus.LongBreak,
			LongBreakEvery: cfg.Focus.LongBreakEvery,
			AutoStartWork:  cfg.Focus.AutoStartWork,
		},
		Logger:  log,
		Metrics: m,
	})
	if err := orchestrator.WatchSyncFailures(bus); err != nil {
		return fmt.Errorf("failed to subscribe to sync failures: %w", err)
	}

	focus := orchestrator.NewFocusTimer().Config()
	log.Info("session orchestrator ready",
		logger.Duration("focus_work", focus.Work),
		logger.Duration("focus_short_break", focus.ShortBreak),
		logger.Duration("focus_long_break", focus.LongBreak),
		logger.Int("long_break_every", focus.LongBreakEvery),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК ФОНОВЫХ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Metrics:  m,
		Timezone: cfg.App.Location,
	})

	accounts := jobs.AccountSource(registry.Accounts)
	if len(cfg.Planner.Accounts) > 0 {
		accounts = jobs.StaticAccounts(cfg.Planner.Accounts...)
	}
	adjustJob := jobs.NewAdjustWeekJob(orchestrator, accounts, jobs.AdjustWeekConfig{
		Timeout:  cfg.Planner.JobTimeout,
		Location: cfg.App.Location,
		Logger:   log,
	})
	if err := sched.Register(adjustJob, scheduler.Every(cfg.Planner.Interval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", adjustJob.Name(), err)
	}
	if !cfg.Planner.AutoAdjust {
		// Ручной запуск через POST /jobs/adjust_week/run остаётся доступным.
		if err := sched.SetEnabled(adjustJob.Name(), false); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	server := opshttp.NewServer(opshttp.Config{
		Addr:            cfg.Observability.HTTPAddr,
		ShutdownTimeout: cfg.App.ShutdownTimeout,
		DisableMetrics:  !cfg.Observability.MetricsEnabled,
		Debug:           cfg.App.Debug,
	}, opshttp.Dependencies{
		Logger:  log,
		Metrics: m,
		Health:  health,
		Jobs:    sched,
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	log.Info("worker started",
		logger.String("http_addr", cfg.Observability.HTTPAddr),
		logger.Bool("auto_adjust", cfg.Planner.AutoAdjust),
		logger.Duration("adjust_interval", cfg.Planner.Interval),
	)

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("worker stopped with error", logger.Err(runErr))
		err = runErr
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if serr := sched.Stop(); serr != nil && !errors.Is(serr, scheduler.ErrSchedulerNotRunning) {
		err = multierr.Append(err, fmt.Errorf("stop scheduler: %w", serr))
	}
	// Незаписанный прогресс дописывается до закрытия хранилищ.
	if cerr := registry.Close(shutdownCtx); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close ledgers: %w", cerr))
	}

	if err != nil {
		log.Error("shutdown completed with errors", logger.Err(err))
		return err
	}
	log.Info("worker stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.Observability.LogFile != "" {
		opts.File = &logger.FileOptions{
			Path:       cfg.Observability.LogFile,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		}
	}

	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

func redisConfig(cfg *config.Config) rediscache.Config {
	rc := rediscache.DefaultConfig()
	rc.URL = cfg.Redis.URL
	if cfg.Redis.Host != "" {
		rc.Host = cfg.Redis.Host
	}
	if cfg.Redis.Port > 0 {
		rc.Port = cfg.Redis.Port
	}
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		rc.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		rc.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.Redis.WriteTimeout
	}
	return rc
}
