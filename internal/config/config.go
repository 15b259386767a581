package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервера игры.
type Config struct {
	// Настройки HTTP сервера
	HTTPPort            int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout         time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout        time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"0"` // 0 - без лимита, SSE-стримы живут долго
	IdleTimeout         time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	CORSAllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	SSEKeepaliveTimeout time.Duration `envconfig:"SSE_KEEPALIVE_TIMEOUT" default:"15s"`

	// Настройки AI (OpenRouter по умолчанию)
	AIClientType     string        `envconfig:"AI_CLIENT_TYPE" default:"openai"` // openai | ollama
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIDefaultModel   string        `envconfig:"AI_DEFAULT_MODEL" default:"llama"`
	AIFallbackModels []string      `envconfig:"AI_FALLBACK_MODELS" default:""`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	AIMaxTokens      int           `envconfig:"AI_MAX_TOKENS" default:"500"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Хранилище истории партий: memory | postgres
	StoreType string `envconfig:"STORE_TYPE" default:"memory"`

	// Настройки PostgreSQL (используются при STORE_TYPE=postgres)
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"imposter_db"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Кэш результатов (пусто - кэш выключен)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisTTL      time.Duration `envconfig:"REDIS_RESULT_TTL" default:"24h"`

	// Уведомления о завершении партий (пусто - уведомления выключены)
	RabbitMQURL        string `envconfig:"RABBITMQ_URL" default:""`
	CompletedQueueName string `envconfig:"COMPLETED_QUEUE_NAME" default:"imposter.game.completed"`

	// Логирование
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Секреты читаем отдельно: сперва файл-секрет, затем переменная окружения
	cfg.AIAPIKey = readSecret("openrouter_api_key", "OPENROUTER_API_KEY")
	if cfg.AIAPIKey == "" && strings.EqualFold(cfg.AIClientType, "openai") {
		return nil, fmt.Errorf("OPENROUTER_API_KEY не задан (секрет openrouter_api_key отсутствует)")
	}
	cfg.DBPassword = readSecret("db_password", "DB_PASSWORD")
	if cfg.DBPassword == "" && strings.EqualFold(cfg.StoreType, "postgres") {
		return nil, fmt.Errorf("DB_PASSWORD не задан при STORE_TYPE=postgres")
	}

	// Логируем загруженную конфигурацию (кроме паролей/ключей)
	log.Printf("Конфигурация загружена:")
	log.Printf("  HTTP Port: %d", cfg.HTTPPort)
	log.Printf("  AI Client Type: %s", cfg.AIClientType)
	log.Printf("  AI Base URL: %s", cfg.AIBaseURL)
	log.Printf("  AI Default Model: %s", cfg.AIDefaultModel)
	log.Printf("  AI Timeout: %v, Max Attempts: %d, Base Retry Delay: %v",
		cfg.AITimeout, cfg.AIMaxAttempts, cfg.AIBaseRetryDelay)
	log.Printf("  Store Type: %s", cfg.StoreType)
	if strings.EqualFold(cfg.StoreType, "postgres") {
		log.Printf("  DB DSN: %s", cfg.getMaskedDSN())
	}
	if cfg.RedisAddr != "" {
		log.Printf("  Redis: %s (db=%d, ttl=%v)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisTTL)
	}
	if cfg.RabbitMQURL != "" {
		log.Printf("  RabbitMQ queue: %s", cfg.CompletedQueueName)
	}
	if cfg.AIAPIKey != "" {
		log.Println("  AI API Key: [ЗАГРУЖЕН]")
	}

	return &cfg, nil
}

// readSecret читает секрет из файла /run/secrets/<name>, а при его отсутствии
// - из переменной окружения envKey.
func readSecret(name, envKey string) string {
	data, err := os.ReadFile(filepath.Join("/run/secrets", name))
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

// getMaskedDSN возвращает DSN с замаскированным паролем для логирования.
func (c *Config) getMaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.Split(dsn, "@")
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 2 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}
