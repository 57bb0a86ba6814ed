// Package config предоставляет управление конфигурацией приложения
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// TelegramAPI содержит учетные данные аккаунта моста.
// Их отсутствие — фатальная ошибка запуска, а не ошибка запроса.
type TelegramAPI struct {
	APIID       int    `json:"api_id" yaml:"api_id"`
	APIHash     string `json:"api_hash" yaml:"api_hash"`
	PhoneNumber string `json:"phone_number" yaml:"phone_number"`
	SessionFile string `json:"session_file" yaml:"session_file"`
}

// Bridge содержит конфигурацию моста между веб-клиентом и Telegram
type Bridge struct {
	// AllowedOrigin — единственный origin веб-клиента, которому разрешен CORS.
	AllowedOrigin string `json:"allowed_origin" yaml:"allowed_origin"`
	// DefaultAvatar подставляется незарегистрированным авторам и сообщениям Telegram.
	DefaultAvatar string `json:"default_avatar" yaml:"default_avatar"`
	// MediaChannel — единственный канал, принимающий вложения-изображения.
	// Пустое значение отключает вложения.
	MediaChannel      string `json:"media_channel" yaml:"media_channel"`
	RemoteFetchLimit  int    `json:"remote_fetch_limit" yaml:"remote_fetch_limit"`
	MessageTTLMinutes int    `json:"message_ttl_minutes" yaml:"message_ttl_minutes"`
}

// Users содержит конфигурацию хранилища каталога пользователей
type Users struct {
	// Backend — "memory" или "sqlite"; контракт хранилища одинаков.
	Backend string `json:"backend" yaml:"backend"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// Config содержит конфигурацию приложения
type Config struct {
	Server      Server      `json:"server" yaml:"server"`
	TelegramAPI TelegramAPI `json:"telegram_api" yaml:"telegram_api"`
	Bridge      Bridge      `json:"bridge" yaml:"bridge"`
	Users       Users       `json:"users" yaml:"users"`
	Logging     Logging     `json:"logging" yaml:"logging"`
}

// LoadConfig загружает конфигурацию приложения из переменных окружения, .env файла или config.yml
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла, если он существует.
	// Отсутствие файла нормально: полагаемся на окружение или config.yml.
	_ = godotenv.Load()

	cfg, err := loadFromYAML("config.yml")
	if err != nil {
		// Если загрузка YAML не удалась, используем переменные окружения
		cfg, err = loadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("не удалось загрузить конфигурацию из env: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// loadFromYAML загружает конфигурацию из YAML-файла
func loadFromYAML(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return &cfg, nil
}

// loadFromEnv загружает конфигурацию из переменных окружения
func loadFromEnv() (*Config, error) {
	apiIDStr := getEnv("API_ID", "")
	apiHash := getEnv("API_HASH", "")
	phoneNumber := getEnv("PHONE_NUMBER", "")

	if apiIDStr == "" || apiHash == "" || phoneNumber == "" {
		return nil, fmt.Errorf("API_ID, API_HASH и PHONE_NUMBER должны быть установлены в переменных окружения")
	}

	apiID, err := strconv.Atoi(apiIDStr)
	if err != nil {
		return nil, fmt.Errorf("недопустимый API_ID: %w", err)
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", strconv.Itoa(DefaultServerPort)))
	if err != nil {
		return nil, fmt.Errorf("недопустимый SERVER_PORT: %w", err)
	}

	ttlMinutes, err := strconv.Atoi(getEnv("MESSAGE_TTL_MINUTES", strconv.Itoa(DefaultMessageTTLMinutes)))
	if err != nil {
		return nil, fmt.Errorf("недопустимый MESSAGE_TTL_MINUTES: %w", err)
	}

	fetchLimit, err := strconv.Atoi(getEnv("REMOTE_FETCH_LIMIT", strconv.Itoa(DefaultRemoteFetchLimit)))
	if err != nil {
		return nil, fmt.Errorf("недопустимый REMOTE_FETCH_LIMIT: %w", err)
	}

	return &Config{
		Server: Server{
			Host: getEnv("SERVER_HOST", DefaultServerHost),
			Port: port,
		},
		TelegramAPI: TelegramAPI{
			APIID:       apiID,
			APIHash:     apiHash,
			PhoneNumber: phoneNumber,
			SessionFile: getEnv("SESSION_FILE", DefaultSessionFile),
		},
		Bridge: Bridge{
			AllowedOrigin:     getEnv("ALLOWED_ORIGIN", DefaultAllowedOrigin),
			DefaultAvatar:     getEnv("DEFAULT_AVATAR", DefaultAvatarURL),
			MediaChannel:      getEnv("MEDIA_CHANNEL", ""),
			RemoteFetchLimit:  fetchLimit,
			MessageTTLMinutes: ttlMinutes,
		},
		Users: Users{
			Backend: getEnv("USERS_BACKEND", DefaultUsersBackend),
			DSN:     getEnv("USERS_DSN", ""),
		},
		Logging: Logging{
			Level:  getEnv("LOG_LEVEL", DefaultLogLevel),
			Format: getEnv("LOG_FORMAT", DefaultLogFormat),
		},
	}, nil
}

// applyDefaults заполняет незаданные поля значениями по умолчанию
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if c.TelegramAPI.SessionFile == "" {
		c.TelegramAPI.SessionFile = DefaultSessionFile
	}
	if c.Bridge.AllowedOrigin == "" {
		c.Bridge.AllowedOrigin = DefaultAllowedOrigin
	}
	if c.Bridge.DefaultAvatar == "" {
		c.Bridge.DefaultAvatar = DefaultAvatarURL
	}
	if c.Bridge.RemoteFetchLimit == 0 {
		c.Bridge.RemoteFetchLimit = DefaultRemoteFetchLimit
	}
	if c.Bridge.MessageTTLMinutes == 0 {
		c.Bridge.MessageTTLMinutes = DefaultMessageTTLMinutes
	}
	if c.Users.Backend == "" {
		c.Users.Backend = DefaultUsersBackend
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MessageTTL возвращает время жизни веб-сообщений в кеше
func (c *Config) MessageTTL() time.Duration {
	return time.Duration(c.Bridge.MessageTTLMinutes) * time.Minute
}

// ShutdownTimeout возвращает таймаут корректного завершения сервера
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.TelegramAPI.APIID <= 0 {
		return fmt.Errorf("telegram_api.api_id должно быть положительным целым числом")
	}
	if c.TelegramAPI.APIHash == "" {
		return fmt.Errorf("telegram_api.api_hash не может быть пустым")
	}
	if c.TelegramAPI.PhoneNumber == "" {
		return fmt.Errorf("telegram_api.phone_number не может быть пустым")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds должно быть положительным")
	}

	if c.Bridge.AllowedOrigin == "" {
		return fmt.Errorf("bridge.allowed_origin не может быть пустым")
	}
	if c.Bridge.RemoteFetchLimit <= 0 {
		return fmt.Errorf("bridge.remote_fetch_limit должно быть положительным")
	}
	if c.Bridge.MessageTTLMinutes <= 0 {
		return fmt.Errorf("bridge.message_ttl_minutes должно быть положительным")
	}

	switch c.Users.Backend {
	case "memory":
		// DSN не требуется
	case "sqlite":
		if c.Users.DSN == "" {
			return fmt.Errorf("users.dsn обязателен для бэкенда sqlite")
		}
	default:
		return fmt.Errorf("users.backend должен быть одним из: memory, sqlite")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}

	switch c.Logging.Format {
	case "json", "text":
		// all good
	default:
		return fmt.Errorf("logging.format должен быть одним из: json, text")
	}

	return nil
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
