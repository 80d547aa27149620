// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// Публичная ссылка на бота (t.me/...), сюда уводим браузер после оплаты
	BotPublicURL string `envconfig:"BOT_PUBLIC_URL" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"lots"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Redis ---
	// Пустой адрес = хранилище возвратов в памяти процесса
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// --- HTTP (возврат из оплаты) ---
	HTTPAddr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReturnSigningSecret string        `envconfig:"RETURN_SIGNING_SECRET" required:"true"`
	ReturnTTL           time.Duration `envconfig:"RETURN_TTL" default:"24h"`
	// Внешний адрес /checkout/return, его отдаёт /returnlink
	ReturnBaseURL string `envconfig:"RETURN_BASE_URL" default:"http://localhost:8080/checkout/return"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`
	// Не чаще одного редактирования сообщения за интервал (лимиты Telegram)
	BotEditInterval time.Duration `envconfig:"BOT_EDIT_INTERVAL" default:"1s"`

	// --- Operator ---
	OperatorIDsRaw       string  `envconfig:"OPERATOR_IDS" default:""`
	OperatorIDs          []int64 `envconfig:"-"` // заполним вручную
	OperatorPasswordHash string  `envconfig:"OPERATOR_PASSWORD_HASH" default:""`

	// --- Checkout ---
	CheckoutPollInterval time.Duration `envconfig:"CHECKOUT_POLL_INTERVAL" default:"2s"`
	CheckoutMaxAttempts  int           `envconfig:"CHECKOUT_MAX_ATTEMPTS" default:"15"`

	// --- Leaderboard ---
	LeaderboardFallbackInterval time.Duration `envconfig:"LEADERBOARD_FALLBACK_INTERVAL" default:"5s"`
	RoomViewTTL                 time.Duration `envconfig:"ROOM_VIEW_TTL" default:"15m"`
	RealtimeChannel             string        `envconfig:"REALTIME_CHANNEL" default:"room_changes"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"20"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureVerifyEnabled  bool `envconfig:"FEATURE_VERIFY_ENABLED" default:"true"`
	FeatureOutcomeEnabled bool `envconfig:"FEATURE_OUTCOME_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsOperator проверяет, есть ли userID в списке операторов.
func (c *Config) IsOperator(userID int64) bool {
	for _, id := range c.OperatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.CheckoutPollInterval <= 0 || c.CheckoutMaxAttempts <= 0 {
		return fmt.Errorf("CHECKOUT_POLL_INTERVAL и CHECKOUT_MAX_ATTEMPTS должны быть > 0")
	}
	if c.LeaderboardFallbackInterval <= 0 {
		return fmt.Errorf("LEADERBOARD_FALLBACK_INTERVAL должен быть > 0")
	}
	if len(c.OperatorIDs) > 0 && c.OperatorPasswordHash == "" {
		return fmt.Errorf("OPERATOR_IDS заданы, но OPERATOR_PASSWORD_HASH пуст")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.OperatorIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("OPERATOR_IDS parse: %w", err)
	}
	cfg.OperatorIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
