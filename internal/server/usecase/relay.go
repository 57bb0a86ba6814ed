package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"telegram-chat-bridge/internal/cache"
	"telegram-chat-bridge/internal/core/services"
	"telegram-chat-bridge/internal/domain"
	"telegram-chat-bridge/internal/ports"
)

// imageExtensions — допустимые расширения вложений медиаканала.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// ChannelRelay оркестрирует операции ленты канала: чтение объединенной
// истории, публикацию веб-сообщений и удаление.
type ChannelRelay struct {
	gateway    ports.ChannelGateway
	msgCache   *cache.MessageCache
	directory  *services.DirectoryService
	aggregator *services.MessageAggregator

	// mediaChannel — единственный канал, принимающий вложения-изображения.
	// Пустое значение отключает вложения полностью.
	mediaChannel string
	remoteLimit  int

	clock func() time.Time
	newID func() string
	log   *slog.Logger
}

// RelayOption определяет функциональную опцию для конфигурации ChannelRelay.
type RelayOption func(*ChannelRelay)

// WithMediaChannel устанавливает канал, принимающий вложения.
func WithMediaChannel(channelID string) RelayOption {
	return func(r *ChannelRelay) {
		r.mediaChannel = channelID
	}
}

// WithRemoteLimit устанавливает окно выборки истории Telegram.
func WithRemoteLimit(n int) RelayOption {
	return func(r *ChannelRelay) {
		if n > 0 {
			r.remoteLimit = n
		}
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func WithClock(clock func() time.Time) RelayOption {
	return func(r *ChannelRelay) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) RelayOption {
	return func(r *ChannelRelay) {
		if l != nil {
			r.log = l
		}
	}
}

// NewChannelRelay создает новый экземпляр ChannelRelay и подписывает кеш
// на события удаления, приходящие от платформы.
func NewChannelRelay(
	gateway ports.ChannelGateway,
	msgCache *cache.MessageCache,
	directory *services.DirectoryService,
	aggregator *services.MessageAggregator,
	opts ...RelayOption,
) *ChannelRelay {
	r := &ChannelRelay{
		gateway:     gateway,
		msgCache:    msgCache,
		directory:   directory,
		aggregator:  aggregator,
		remoteLimit: services.DefaultRemoteLimit,
		clock:       time.Now,
		newID:       func() string { return "web-" + uuid.NewString() },
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	gateway.OnMessagesDeleted(func(channelID string, messageIDs []string) {
		for _, id := range messageIDs {
			r.msgCache.Remove(channelID, id)
		}
		r.log.Debug("Platform delete event applied to cache",
			"channel_id", channelID, "count", len(messageIDs))
	})

	return r
}

// GetFeed возвращает объединенную ленту канала: история Telegram плюс свежие
// веб-сообщения, отсортированные по времени. Чтение кеша попутно вытесняет
// просроченные записи. Сбой шлюза возвращается вызывающей стороне без повторов.
func (r *ChannelRelay) GetFeed(ctx context.Context, channelID string) ([]domain.Message, error) {
	if _, err := r.gateway.ResolveChannel(ctx, channelID); err != nil {
		return nil, err
	}

	remote, err := r.gateway.RecentMessages(ctx, channelID, r.remoteLimit)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "history fetch", Err: err}
	}

	local := r.msgCache.ReadFresh(channelID, r.clock())

	return r.aggregator.Merge(remote, local), nil
}

// PostRequest — входные данные публикации веб-сообщения.
type PostRequest struct {
	ChannelID   string
	Username    string
	Content     string
	Attachments []string
}

// PostMessage публикует веб-сообщение: разрешает личность автора через
// каталог, кладет сообщение в кеш и пересылает его в Telegram.
//
// Кеш пополняется ДО пересылки и при ее сбое не откатывается: сообщение
// остается видимым веб-читателям, даже если эхо в Telegram не прошло.
// Это принятая несогласованность, унаследованная от исходной системы.
func (r *ChannelRelay) PostMessage(ctx context.Context, req PostRequest) (*domain.Message, error) {
	channelID := strings.TrimSpace(req.ChannelID)
	username := strings.TrimSpace(req.Username)
	content := strings.TrimSpace(req.Content)

	var missing []string
	if channelID == "" {
		missing = append(missing, "channelId")
	}
	if content == "" {
		missing = append(missing, "content")
	}
	if username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Fields: missing}
	}

	attachment, err := r.checkAttachment(channelID, req.Attachments)
	if err != nil {
		return nil, err
	}

	identity, err := r.directory.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}

	msg := domain.Message{
		ID:         r.newID(),
		ChannelID:  channelID,
		Username:   identity.DisplayName,
		Content:    content,
		Avatar:     identity.Avatar,
		Timestamp:  r.clock().UnixMilli(),
		Source:     domain.OriginLocal,
		Attachment: attachment,
	}
	r.msgCache.Append(channelID, msg)

	forwarded := fmt.Sprintf("**%s**: %s", identity.DisplayName, content)
	if attachment != "" {
		forwarded += "\n" + attachment
	}
	if _, err := r.gateway.Send(ctx, channelID, forwarded); err != nil {
		r.log.WarnContext(ctx, "Forward to Telegram failed, web copy kept",
			"channel_id", channelID, "message_id", msg.ID, "error", err)
		return nil, &domain.UpstreamError{Op: "send", Err: err}
	}

	r.log.InfoContext(ctx, "Message relayed",
		"channel_id", channelID, "message_id", msg.ID, "author", identity.DisplayName)
	return &msg, nil
}

// DeleteMessage удаляет сообщение из кеша безусловно и, для сообщений
// Telegram, пытается удалить его на платформе. Отсутствие сообщения на
// платформе не считается ошибкой всей операции.
func (r *ChannelRelay) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	r.msgCache.Remove(channelID, messageID)

	if strings.HasPrefix(messageID, "web-") {
		return nil
	}

	if err := r.gateway.DeleteMessage(ctx, channelID, messageID); err != nil {
		return &domain.UpstreamError{Op: "delete", Err: err}
	}
	return nil
}

// checkAttachment применяет ограничение медиаканала и возвращает первое
// допустимое вложение. Запросы без вложений проходят без проверок.
func (r *ChannelRelay) checkAttachment(channelID string, attachments []string) (string, error) {
	if len(attachments) == 0 {
		return "", nil
	}
	if r.mediaChannel == "" || channelID != r.mediaChannel {
		return "", domain.ErrChannelRestricted
	}

	raw := attachments[0]
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", domain.ErrAttachmentRejected
	}

	path := strings.ToLower(parsed.Path)
	dot := strings.LastIndex(path, ".")
	if dot < 0 || !imageExtensions[path[dot:]] {
		return "", domain.ErrAttachmentRejected
	}
	return raw, nil
}
