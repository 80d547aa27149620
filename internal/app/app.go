// Package app собирает все компоненты бота: БД, Redis, Telegram,
// фичи, HTTP-сервер возвратов и планировщик задач.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/lot-bot/internal/bot"
	"serotonyl.ru/lot-bot/internal/bot/filters"
	"serotonyl.ru/lot-bot/internal/bot/middleware"
	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/config"
	"serotonyl.ru/lot-bot/internal/db/postgres"
	"serotonyl.ru/lot-bot/internal/db/redis"
	"serotonyl.ru/lot-bot/internal/features/admin"
	"serotonyl.ru/lot-bot/internal/features/checkout"
	"serotonyl.ru/lot-bot/internal/features/fairdraw"
	"serotonyl.ru/lot-bot/internal/features/leaderboard"
	"serotonyl.ru/lot-bot/internal/features/members"
	"serotonyl.ru/lot-bot/internal/features/reveal"
	"serotonyl.ru/lot-bot/internal/features/rooms"
	"serotonyl.ru/lot-bot/internal/jobs"
	"serotonyl.ru/lot-bot/internal/ledger"
	"serotonyl.ru/lot-bot/internal/metrics"
	"serotonyl.ru/lot-bot/internal/web"
)

// Через сколько простоя забываем лимитер редактирований чата
// и закрываем брошенный сценарий показа.
const (
	editLimiterIdle = 30 * time.Minute
	revealMaxAge    = 30 * time.Minute
)

// App — собранное приложение.
type App struct {
	cfg *config.Config

	DB    *pgxpool.Pool
	Redis *goredis.Client

	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	Server    *web.Server

	hub        *leaderboard.Hub
	listener   *postgres.Listener
	reconciler *leaderboard.Reconciler
	controller *checkout.Controller
	rooms      *rooms.Handler
	reveal     *reveal.Handler
	returns    *checkout.Handler
	registry   *prometheus.Registry
	storePing  web.Pinger
}

// New создаёт приложение: подключается к БД, применяет миграции,
// связывает фичи между собой.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}
	clock := clockwork.NewRealClock()

	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	app.DB = pool

	if err := postgres.RunMigrations(ctx, pool, migrations()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("миграции: %w", err)
	}
	// Без триггеров таблица лидеров живёт на резервном таймере, бот работает дальше
	if err := installRealtime(ctx, pool, cfg.RealtimeChannel); err != nil {
		log.WithError(err).Error("Не удалось установить триггеры NOTIFY")
	}

	// === 2. Хранилище обработанных возвратов ===
	var returnStore checkout.ReturnStore
	var memStore *checkout.MemoryStore
	if cfg.RedisAddr != "" {
		rdb, err := redis.NewClient(ctx, cfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		app.Redis = rdb
		redisStore := redis.NewReturnStore(rdb)
		returnStore = redisStore
		app.storePing = redisStore
	} else {
		log.Warn("REDIS_ADDR не задан, обработанные возвраты храним в памяти процесса")
		memStore = checkout.NewMemoryStore(clock)
		returnStore = memStore
	}

	// === 3. Метрики и бэкенд ===
	m := metrics.New("lotbot")
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(app.registry); err != nil {
		app.closeStores()
		return nil, fmt.Errorf("метрики: %w", err)
	}
	ledgerClient := ledger.NewClient(pool, m)

	// === 4. Telegram ===
	api, err := telego.NewBot(cfg.TelegramBotToken, telego.WithLogger(log.StandardLogger()))
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	log.WithField("username", me.Username).Info("Авторизован в Telegram")

	msg := sender.New(api, cfg.BotEditInterval)

	// === 5. Фичи ===
	memberService := members.NewService(members.NewRepository(pool), clock)
	memberHandler := members.NewHandler(memberService, msg)

	drawService := fairdraw.NewService(ledgerClient, m)
	drawHandler := fairdraw.NewHandler(drawService, msg)

	app.reveal = reveal.NewHandler(msg, clock, m)

	app.hub = leaderboard.NewHub(m)
	app.listener = postgres.NewListener(pool, cfg.RealtimeChannel)
	app.reconciler = leaderboard.NewReconciler(ledgerClient, app.hub, leaderboard.Options{
		Fallback: cfg.LeaderboardFallbackInterval,
		Clock:    clock,
		Metrics:  m,
	})

	app.rooms = rooms.NewHandler(rooms.NewService(ledgerClient), app.reconciler, msg,
		app.reveal, drawHandler, memberService, rooms.Options{
			ViewTTL:        cfg.RoomViewTTL,
			Clock:          clock,
			VerifyEnabled:  cfg.FeatureVerifyEnabled,
			OutcomeEnabled: cfg.FeatureOutcomeEnabled,
		})

	app.controller = checkout.NewController(ledgerClient, checkout.Options{
		Interval:    cfg.CheckoutPollInterval,
		MaxAttempts: cfg.CheckoutMaxAttempts,
		Clock:       clock,
		Metrics:     m,
	})
	app.returns = checkout.NewHandler(app.controller, returnStore, msg, app.reveal, app.rooms, cfg.ReturnTTL)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, clock)

	adminService := admin.NewService(admin.NewRepository(pool), cfg.OperatorPasswordHash, clock)
	adminHandler := admin.NewHandler(adminService, msg, cfg.IsOperator,
		admin.LinkConfig{BaseURL: cfg.ReturnBaseURL, Secret: cfg.ReturnSigningSecret},
		memberService,
		admin.Gauge{Name: "checkout", Value: app.returns.Active},
		admin.Gauge{Name: "rooms", Value: app.rooms.Active},
		admin.Gauge{Name: "watches", Value: app.reconciler.Active},
		admin.Gauge{Name: "reveals", Value: app.reveal.Active},
	)

	// === 6. Бот ===
	app.Bot = bot.New(api, cfg, msg, bot.Handlers{
		Greeter: memberHandler,
		Members: memberService,
		Rooms:   app.rooms,
		Reveal:  app.reveal,
		Verify:  drawHandler,
		Admin:   adminHandler,
	}, filters.NewChatFilter(msg), rateLimiter, m)

	// === 7. Планировщик ===
	scheduled := []jobs.Job{
		jobs.PurgeJob("rate_limit", rateLimiter),
		jobs.IdlePurgeJob("edit_limiters", msg, editLimiterIdle),
		jobs.ExpireJob("reveal_flows", app.reveal, revealMaxAge),
		jobs.ActivityJob(
			jobs.Gauge{Name: "checkout", Value: app.returns.Active},
			jobs.Gauge{Name: "rooms", Value: app.rooms.Active},
			jobs.Gauge{Name: "watches", Value: app.reconciler.Active},
			jobs.Gauge{Name: "reveals", Value: app.reveal.Active},
			jobs.Gauge{Name: "rate_limited_users", Value: rateLimiter.Tracked},
		),
	}
	if memStore != nil {
		scheduled = append(scheduled, jobs.PurgeJob("returns", memStore))
	}
	app.Scheduler = jobs.NewScheduler(scheduled...)

	log.Info("Все компоненты инициализированы")
	return app, nil
}

// Run запускает бота, HTTP-сервер, хаб уведомлений и планировщик.
// Блокируется до отмены ctx или падения одного из компонентов.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	router := web.NewRouter(a.returns, a.DB, web.Options{
		AppCtx:      gctx,
		Secret:      a.cfg.ReturnSigningSecret,
		RedirectURL: a.cfg.BotPublicURL,
		Gatherer:    a.registry,
		Store:       a.storePing,
	})
	a.Server = web.NewServer(a.cfg.HTTPAddr, router)

	if err := a.Scheduler.Start(gctx); err != nil {
		a.shutdown()
		return fmt.Errorf("планировщик: %w", err)
	}

	g.Go(func() error { return a.Bot.Start(gctx) })
	g.Go(func() error { return a.Server.Run(gctx) })
	g.Go(func() error { return a.hub.Run(gctx, a.listener) })

	err := g.Wait()
	a.shutdown()
	return err
}

// shutdown останавливает фоновые сценарии и закрывает соединения.
func (a *App) shutdown() {
	a.rooms.Shutdown()
	a.reconciler.StopAll()
	a.reveal.Shutdown()
	a.controller.Wait()
	a.Scheduler.Stop()
	a.closeStores()
	log.Info("Приложение остановлено")
}

func (a *App) closeStores() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	a.DB.Close()
}

// migrations — схема, которой владеет бот. Триггеры NOTIFY на таблицах
// бэкенда сюда не входят: их ставит installRealtime при каждом старте.
func migrations() []postgres.Migration {
	return []postgres.Migration{
		{Version: 1, Name: "bot_users", SQL: members.Migration},
		{Version: 2, Name: "admin_sessions", SQL: admin.Migration},
	}
}
