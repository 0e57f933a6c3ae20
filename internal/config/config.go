// Пакет config — загрузка и валидация конфигурации megalinks
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации megalinks.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout time.Duration
	// Таймаут записи; refresh-all выполняется синхронно, поэтому значение больше обычного
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- MEGA API ---

	// Endpoint листинга узлов (POST ...?id=0&n=<root>)
	MegaAPIURL string
	// Таймаут одного запроса к MEGA API
	MegaTimeout time.Duration

	// --- Обновление анализа ---

	// Пауза между последовательными запросами в refresh-all
	RefreshPacing time.Duration
	// Интервал фонового обновления всех ссылок (0 — отключено)
	RefreshInterval time.Duration
	// Ёмкость очереди повторного анализа после изменения URL
	ReanalyzeQueueSize int

	// --- Сессии ---

	SessionTTL          time.Duration
	SessionMax          int
	SessionSecureCookie bool

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает полную конфигурацию сервера из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadLogging(cfg); err != nil {
		return nil, err
	}
	if err := loadServer(cfg); err != nil {
		return nil, err
	}
	if err := loadDatabase(cfg); err != nil {
		return nil, err
	}
	if err := loadMega(cfg); err != nil {
		return nil, err
	}
	if err := loadRefresh(cfg); err != nil {
		return nil, err
	}
	if err := loadSessions(cfg); err != nil {
		return nil, err
	}
	if err := loadDephealth(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadAnalyzer загружает только параметры логирования и MEGA API.
// Используется CLI-командой analyze, которой не нужна БД.
func LoadAnalyzer() (*Config, error) {
	cfg := &Config{}
	if err := loadLogging(cfg); err != nil {
		return nil, err
	}
	if err := loadMega(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLogging(cfg *Config) error {
	var err error

	// ML_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("ML_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("ML_LOG_LEVEL: %w", err)
	}

	// ML_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("ML_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("ML_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}
	return nil
}

func loadServer(cfg *Config) error {
	var err error

	// ML_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("ML_PORT", 8080)
	if err != nil {
		return fmt.Errorf("ML_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("ML_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("ML_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("ML_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("ML_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return fmt.Errorf("ML_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("ML_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return fmt.Errorf("ML_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// ML_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("ML_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return fmt.Errorf("ML_SHUTDOWN_TIMEOUT: %w", err)
	}
	return nil
}

func loadDatabase(cfg *Config) error {
	var err error

	// ML_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("ML_DB_HOST")
	if err != nil {
		return err
	}

	// ML_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("ML_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("ML_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("ML_DB_NAME")
	if err != nil {
		return err
	}

	cfg.DBUser, err = getEnvRequired("ML_DB_USER")
	if err != nil {
		return err
	}

	cfg.DBPassword, err = getEnvRequired("ML_DB_PASSWORD")
	if err != nil {
		return err
	}

	// ML_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("ML_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("ML_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

func loadMega(cfg *Config) error {
	var err error

	// ML_MEGA_API_URL — endpoint листинга узлов MEGA
	cfg.MegaAPIURL = strings.TrimRight(getEnvDefault("ML_MEGA_API_URL", "https://g.api.mega.co.nz/cs"), "/")
	if !strings.HasPrefix(cfg.MegaAPIURL, "http://") && !strings.HasPrefix(cfg.MegaAPIURL, "https://") {
		return fmt.Errorf("ML_MEGA_API_URL: ожидается http(s) URL, получено %q", cfg.MegaAPIURL)
	}

	// ML_MEGA_TIMEOUT — таймаут запроса к MEGA (по умолчанию 30s)
	cfg.MegaTimeout, err = getEnvDurationPositive("ML_MEGA_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("ML_MEGA_TIMEOUT: %w", err)
	}
	return nil
}

func loadRefresh(cfg *Config) error {
	var err error

	// ML_REFRESH_PACING — пауза между ссылками в refresh-all (по умолчанию 1s)
	cfg.RefreshPacing, err = getEnvDuration("ML_REFRESH_PACING", time.Second)
	if err != nil {
		return fmt.Errorf("ML_REFRESH_PACING: %w", err)
	}
	if cfg.RefreshPacing < 0 {
		return fmt.Errorf("ML_REFRESH_PACING: значение не может быть отрицательным")
	}

	// ML_REFRESH_INTERVAL — фоновое обновление всех ссылок (по умолчанию 6h, 0 — отключено)
	cfg.RefreshInterval, err = getEnvDuration("ML_REFRESH_INTERVAL", 6*time.Hour)
	if err != nil {
		return fmt.Errorf("ML_REFRESH_INTERVAL: %w", err)
	}
	if cfg.RefreshInterval < 0 {
		return fmt.Errorf("ML_REFRESH_INTERVAL: значение не может быть отрицательным")
	}

	cfg.ReanalyzeQueueSize, err = getEnvInt("ML_REANALYZE_QUEUE_SIZE", 64)
	if err != nil {
		return fmt.Errorf("ML_REANALYZE_QUEUE_SIZE: %w", err)
	}
	if cfg.ReanalyzeQueueSize < 1 || cfg.ReanalyzeQueueSize > 10000 {
		return fmt.Errorf("ML_REANALYZE_QUEUE_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.ReanalyzeQueueSize)
	}
	return nil
}

func loadSessions(cfg *Config) error {
	var err error

	// ML_SESSION_TTL — время жизни сессии, продлевается при использовании (по умолчанию 24h)
	cfg.SessionTTL, err = getEnvDurationPositive("ML_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return fmt.Errorf("ML_SESSION_TTL: %w", err)
	}

	cfg.SessionMax, err = getEnvInt("ML_SESSION_MAX", 10000)
	if err != nil {
		return fmt.Errorf("ML_SESSION_MAX: %w", err)
	}
	if cfg.SessionMax < 1 {
		return fmt.Errorf("ML_SESSION_MAX: значение должно быть > 0")
	}

	cfg.SessionSecureCookie, err = getEnvBool("ML_SESSION_SECURE_COOKIE", false)
	if err != nil {
		return fmt.Errorf("ML_SESSION_SECURE_COOKIE: %w", err)
	}
	return nil
}

func loadDephealth(cfg *Config) error {
	var err error

	cfg.DephealthGroup = getEnvDefault("ML_DEPHEALTH_GROUP", "megalinks")

	cfg.DephealthCheckInterval, err = getEnvDuration("ML_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return fmt.Errorf("ML_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	return SetupLoggerTo(cfg, os.Stdout)
}

// SetupLoggerTo — как SetupLogger, но пишет в w.
// CLI выводит логи в stderr, чтобы не смешивать их с результатом команды.
func SetupLoggerTo(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationPositive — как getEnvDuration, но значение обязано быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
