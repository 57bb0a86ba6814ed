package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullYAML представляет полный формат конфигурации моста.
const fullYAML = `
server:
  host: "127.0.0.1"
  port: 8081
  shutdown_timeout_seconds: 20
telegram_api:
  api_id: 12345
  api_hash: "abc123hash"
  phone_number: "+15550001111"
  session_file: "bridge.session"
bridge:
  allowed_origin: "https://example.test"
  default_avatar: "https://example.test/avatar.png"
  media_channel: "media_room"
  remote_fetch_limit: 25
  message_ttl_minutes: 30
users:
  backend: "sqlite"
  dsn: "users.db"
logging:
  level: "debug"
  format: "text"
`

// minimalYAML задает только учетные данные; остальное добирается из значений по умолчанию.
const minimalYAML = `
telegram_api:
  api_id: 98765
  api_hash: "minimal_hash"
  phone_number: "+15550002222"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestLoadFromYAML(t *testing.T) {
	t.Run("success with full format", func(t *testing.T) {
		path := createTempConfigFile(t, fullYAML)
		cfg, err := loadFromYAML(path)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, 12345, cfg.TelegramAPI.APIID)
		assert.Equal(t, "abc123hash", cfg.TelegramAPI.APIHash)
		assert.Equal(t, "+15550001111", cfg.TelegramAPI.PhoneNumber)
		assert.Equal(t, "bridge.session", cfg.TelegramAPI.SessionFile)
		assert.Equal(t, "https://example.test", cfg.Bridge.AllowedOrigin)
		assert.Equal(t, "media_room", cfg.Bridge.MediaChannel)
		assert.Equal(t, 25, cfg.Bridge.RemoteFetchLimit)
		assert.Equal(t, 30, cfg.Bridge.MessageTTLMinutes)
		assert.Equal(t, "sqlite", cfg.Users.Backend)
		assert.Equal(t, "users.db", cfg.Users.DSN)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "text", cfg.Logging.Format)
	})

	t.Run("minimal format falls back to defaults", func(t *testing.T) {
		path := createTempConfigFile(t, minimalYAML)
		cfg, err := loadFromYAML(path)
		require.NoError(t, err)
		cfg.applyDefaults()

		assert.Equal(t, DefaultServerHost, cfg.Server.Host)
		assert.Equal(t, DefaultServerPort, cfg.Server.Port)
		assert.Equal(t, DefaultSessionFile, cfg.TelegramAPI.SessionFile)
		assert.Equal(t, DefaultAllowedOrigin, cfg.Bridge.AllowedOrigin)
		assert.Equal(t, DefaultAvatarURL, cfg.Bridge.DefaultAvatar)
		assert.Equal(t, DefaultRemoteFetchLimit, cfg.Bridge.RemoteFetchLimit)
		assert.Equal(t, DefaultMessageTTLMinutes, cfg.Bridge.MessageTTLMinutes)
		assert.Equal(t, DefaultUsersBackend, cfg.Users.Backend)
		assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
		assert.Empty(t, cfg.Bridge.MediaChannel)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadFromYAML(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := createTempConfigFile(t, "server: [not a map")
		_, err := loadFromYAML(path)
		assert.Error(t, err)
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		t.Setenv("API_ID", "4242")
		t.Setenv("API_HASH", "env_hash")
		t.Setenv("PHONE_NUMBER", "+15550003333")
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("MEDIA_CHANNEL", "media_env")
		t.Setenv("USERS_BACKEND", "memory")

		cfg, err := loadFromEnv()
		require.NoError(t, err)

		assert.Equal(t, 4242, cfg.TelegramAPI.APIID)
		assert.Equal(t, "env_hash", cfg.TelegramAPI.APIHash)
		assert.Equal(t, "+15550003333", cfg.TelegramAPI.PhoneNumber)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "media_env", cfg.Bridge.MediaChannel)
		assert.Equal(t, "memory", cfg.Users.Backend)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("API_ID", "")
		t.Setenv("API_HASH", "")
		t.Setenv("PHONE_NUMBER", "")

		_, err := loadFromEnv()
		assert.Error(t, err)
	})

	t.Run("invalid api id", func(t *testing.T) {
		t.Setenv("API_ID", "not-a-number")
		t.Setenv("API_HASH", "env_hash")
		t.Setenv("PHONE_NUMBER", "+15550003333")

		_, err := loadFromEnv()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	validConfig := func() *Config {
		cfg := &Config{
			TelegramAPI: TelegramAPI{
				APIID:       12345,
				APIHash:     "hash",
				PhoneNumber: "+15550001111",
			},
		}
		cfg.applyDefaults()
		return cfg
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing api hash", func(t *testing.T) {
		cfg := validConfig()
		cfg.TelegramAPI.APIHash = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing phone number", func(t *testing.T) {
		cfg := validConfig()
		cfg.TelegramAPI.PhoneNumber = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("sqlite backend requires dsn", func(t *testing.T) {
		cfg := validConfig()
		cfg.Users.Backend = "sqlite"
		cfg.Users.DSN = ""
		assert.Error(t, cfg.Validate())

		cfg.Users.DSN = "users.db"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown users backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Users.Backend = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestDerivedValues(t *testing.T) {
	cfg := &Config{
		Server: Server{Host: "localhost", Port: 8085, ShutdownTimeoutSeconds: 10},
		Bridge: Bridge{MessageTTLMinutes: 45},
	}

	assert.Equal(t, "localhost:8085", cfg.Address())
	assert.Equal(t, 45*time.Minute, cfg.MessageTTL())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
}
