package log

import (
	"context"
	"log/slog"
	"regexp"
)

// SecretMaskerHandler - обертка для slog.Handler, которая маскирует учетные
// данные Telegram в логах: хеш API и номер телефона аккаунта моста не должны
// попадать в вывод даже внутри текстов ошибок.
type SecretMaskerHandler struct {
	handler slog.Handler
}

// NewSecretMaskerHandler создает новый обработчик с маскировкой учетных данных.
func NewSecretMaskerHandler(handler slog.Handler) *SecretMaskerHandler {
	return &SecretMaskerHandler{
		handler: handler,
	}
}

var (
	// хеш API — 32 шестнадцатеричных символа
	apiHashRegex = regexp.MustCompile(`\b[0-9a-f]{32}\b`)
	// международный номер телефона с кодом страны
	phoneRegex = regexp.MustCompile(`\+\d{10,15}\b`)
)

// maskSecrets заменяет найденные учетные данные на маску
func maskSecrets(text string) string {
	text = apiHashRegex.ReplaceAllString(text, "***masked-hash***")
	return phoneRegex.ReplaceAllString(text, "+***masked-phone***")
}

// Enabled реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Создаем полную, изолированную копию записи, чтобы не работать с
	// оригиналом, который slog может переиспользовать. Clone() обнуляет
	// атрибуты в копии, поэтому их нужно добавить заново.
	r := record.Clone()
	r.Message = maskSecrets(r.Message)

	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(slog.Attr{
			Key:   a.Key,
			Value: maskAttributeValue(a.Value),
		})
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = slog.Attr{
			Key:   attr.Key,
			Value: maskAttributeValue(attr.Value),
		}
	}
	return &SecretMaskerHandler{
		handler: h.handler.WithAttrs(maskedAttrs),
	}
}

// WithGroup реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) WithGroup(name string) slog.Handler {
	return &SecretMaskerHandler{
		handler: h.handler.WithGroup(name),
	}
}

// maskAttributeValue рекурсивно маскирует значения атрибутов
func maskAttributeValue(value slog.Value) slog.Value {
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(maskSecrets(value.String()))
	case slog.KindAny:
		// Ошибки преобразуются в строку и маскируются: тексты ошибок RPC
		// могут содержать номер телефона.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(maskSecrets(err.Error()))
		}
		return value
	case slog.KindGroup:
		group := value.Group()
		maskedGroup := make([]slog.Attr, len(group))
		for i, attr := range group {
			maskedGroup[i] = slog.Attr{
				Key:   attr.Key,
				Value: maskAttributeValue(attr.Value),
			}
		}
		return slog.GroupValue(maskedGroup...)
	default:
		return value
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой учетных данных.
func NewMaskedLogger(handler slog.Handler) *slog.Logger {
	return slog.New(NewSecretMaskerHandler(handler))
}
