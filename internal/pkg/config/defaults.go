package config

// Значения конфигурации по умолчанию
const (
	DefaultServerHost             = "0.0.0.0"
	DefaultServerPort             = 8080
	DefaultShutdownTimeoutSeconds = 15

	DefaultSessionFile = "session.json"

	// DefaultAllowedOrigin — origin веб-клиента, для которого работает мост.
	DefaultAllowedOrigin = "https://studyhall-help.netlify.app"
	// DefaultAvatarURL подставляется, когда у автора нет собственного аватара.
	DefaultAvatarURL = "https://cdn.discordapp.com/embed/avatars/0.png"

	DefaultRemoteFetchLimit  = 50
	DefaultMessageTTLMinutes = 60

	DefaultUsersBackend = "memory"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
