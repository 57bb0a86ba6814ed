package ports

import (
	"context"

	"telegram-chat-bridge/internal/domain"
)

// ChannelGateway определяет интерфейс шлюза к платформе обмена сообщениями.
// Реализация в internal/telegram оборачивает клиент gotd.
type ChannelGateway interface {
	// ResolveChannel разрешает ссылку на канал в доменную модель.
	// Возвращает domain.ErrChannelNotFound или domain.ErrChannelTypeInvalid.
	ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error)
	// RecentMessages возвращает до limit последних сообщений канала,
	// нормализованных в общую модель Message.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
	// Send публикует текст в канал и возвращает отправленное сообщение.
	Send(ctx context.Context, channelID, text string) (*domain.Message, error)
	// DeleteMessage удаляет сообщение платформы по его идентификатору.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// SelfUsername возвращает имя аккаунта моста; агрегатор отфильтровывает
	// по нему собственные пересланные сообщения.
	SelfUsername() string
	// OnMessagesDeleted регистрирует обработчик событий удаления,
	// приходящих от платформы.
	OnMessagesDeleted(fn func(channelID string, messageIDs []string))
	// Health сообщает о работоспособности соединения с платформой.
	Health(ctx context.Context) error
	// KnownChannels возвращает число каналов, разрешенных за время работы.
	KnownChannels() int
}

// UserStore определяет интерфейс хранилища каталога пользователей.
// Реализации: таблица в памяти и SQL-база — контракт идентичен.
type UserStore interface {
	// Find возвращает пользователя по имени или domain.ErrAccountNotFound.
	Find(ctx context.Context, username string) (*domain.User, error)
	// Create сохраняет нового пользователя; domain.ErrUsernameTaken при конфликте.
	Create(ctx context.Context, user *domain.User) error
	// Update перезаписывает запись существующего пользователя.
	Update(ctx context.Context, user *domain.User) error
	// Rename атомарно переносит запись под новый ключ: нет промежуточного
	// состояния, в котором разрешаются оба ключа или ни один.
	Rename(ctx context.Context, oldUsername string, user *domain.User) error
}
