package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // часовые пояса в образах без системной tzdata

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Booking  BookingConfig  `json:"booking"`
	Worker   WorkerConfig   `json:"worker"`
	Payment  PaymentConfig  `json:"payment"`
	Log      LogConfig      `json:"log"`
}

// TelegramConfig содержит настройки Telegram бота
type TelegramConfig struct {
	Token       string  `json:"token"`
	WebhookURL  string  `json:"webhook_url"`
	SecretToken string  `json:"-"`
	AdminIDs    []int64 `json:"admin_ids"`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	RateLimit    int           `json:"rate_limit"` // запросов в минуту с одного IP
}

// DatabaseConfig содержит настройки базы данных
type DatabaseConfig struct {
	Path        string        `json:"path"`
	ConnTimeout time.Duration `json:"conn_timeout"`
}

// BookingConfig содержит настройки бронирований
type BookingConfig struct {
	Timezone       string `json:"timezone"`
	AllowOverlap   bool   `json:"allow_overlap"`
	SlotLengthMins int    `json:"slot_length_mins"`
	DaysAhead      int    `json:"days_ahead"`

	location *time.Location
}

// Location возвращает часовой пояс платформы, в котором считаются границы дня
func (b BookingConfig) Location() *time.Location {
	if b.location != nil {
		return b.location
	}
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// WorkerConfig содержит расписания фоновых задач (формат robfig/cron)
type WorkerConfig struct {
	AutoCompleteSpec string        `json:"auto_complete_spec"`
	ReconcileSpec    string        `json:"reconcile_spec"`
	OnlineStatusSpec string        `json:"online_status_spec"`
	ReminderLead     time.Duration `json:"reminder_lead"`
}

// PaymentConfig содержит настройки webhook платежного шлюза
type PaymentConfig struct {
	WebhookSecret string `json:"-"`
}

// LogConfig содержит настройки логирования
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	return FromEnv()
}

// FromEnv собирает конфигурацию только из переменных окружения
func FromEnv() (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			Token:       os.Getenv("TELEGRAM_TOKEN"),
			WebhookURL:  os.Getenv("WEBHOOK_URL"),
			SecretToken: os.Getenv("TELEGRAM_SECRET_TOKEN"),
			AdminIDs:    getEnvAsInt64List("ADMIN_IDS"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimit:    getEnvAsInt("RATE_LIMIT", 120),
		},
		Database: DatabaseConfig{
			Path:        getEnv("DB_FILE", "pnplive.db"),
			ConnTimeout: getEnvAsDuration("DB_CONN_TIMEOUT", 5*time.Second),
		},
		Booking: BookingConfig{
			Timezone:       getEnv("BOOKING_TIMEZONE", "UTC"),
			AllowOverlap:   getEnvAsBool("BOOKING_ALLOW_OVERLAP", false),
			SlotLengthMins: getEnvAsInt("TIME_FRAME_SLOT_MINS", 90),
			DaysAhead:      getEnvAsInt("BOOKING_DAYS_AHEAD", 7),
		},
		Worker: WorkerConfig{
			AutoCompleteSpec: getEnv("AUTO_COMPLETE_SPEC", "@every 5m"),
			ReconcileSpec:    getEnv("RECONCILE_SPEC", "@every 10m"),
			OnlineStatusSpec: getEnv("ONLINE_STATUS_SPEC", "@every 2m"),
			ReminderLead:     getEnvAsDuration("REMINDER_LEAD", 15*time.Minute),
		},
		Payment: PaymentConfig{
			WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Telegram.WebhookURL == "" {
		return fmt.Errorf("WEBHOOK_URL is required")
	}

	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}
	c.Booking.location = loc

	if c.Booking.SlotLengthMins < 30 {
		return fmt.Errorf("TIME_FRAME_SLOT_MINS must be at least 30")
	}
	if c.Booking.DaysAhead <= 0 {
		return fmt.Errorf("BOOKING_DAYS_AHEAD must be positive")
	}
	if c.Worker.ReminderLead < 0 {
		return fmt.Errorf("REMINDER_LEAD must be non-negative")
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive")
	}

	return nil
}

// IsAdmin проверяет, является ли пользователь администратором
func (c *Config) IsAdmin(userID int64) bool {
	for _, adminID := range c.Telegram.AdminIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAsInt получает переменную окружения как число
func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsBool получает переменную окружения как bool
func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvAsDuration получает переменную окружения как duration
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvAsInt64List разбирает список чисел через запятую, некорректные элементы пропускаются
func getEnvAsInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
