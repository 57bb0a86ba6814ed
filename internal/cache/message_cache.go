package cache

import (
	"sync"
	"time"

	"telegram-chat-bridge/internal/domain"
)

// MessageCache хранит веб-сообщения по каналам до тех пор, пока они не станут
// видимыми в повторной выборке из Telegram. Хранилище энергозависимо:
// перезапуск процесса очищает его.
//
// Вытеснение ленивое: просроченные записи отбрасываются при следующем чтении
// канала, фонового таймера нет. Устаревание имеет значение только в момент
// чтения, поэтому крошечная стоимость фильтрации на чтение предпочтительнее
// фоновой горутины.
type MessageCache struct {
	ttl      time.Duration
	messages map[string][]domain.Message
	mutex    sync.Mutex
}

// NewMessageCache создает новый экземпляр MessageCache с заданным TTL.
func NewMessageCache(ttl time.Duration) *MessageCache {
	return &MessageCache{
		ttl:      ttl,
		messages: make(map[string][]domain.Message),
	}
}

// Append добавляет сообщение в конец последовательности канала,
// инициализируя ее при отсутствии. Ограничения по количеству нет —
// рост сдерживается TTL.
func (mc *MessageCache) Append(channelID string, msg domain.Message) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.messages[channelID] = append(mc.messages[channelID], msg)
}

// ReadFresh возвращает непросроченные сообщения канала и, как побочный
// эффект, заменяет сохраненную последовательность ровно этим отфильтрованным
// набором. Просроченные записи удаляются, а не скрываются.
func (mc *MessageCache) ReadFresh(channelID string, now time.Time) []domain.Message {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	stored, exists := mc.messages[channelID]
	if !exists {
		return nil
	}

	nowMs := now.UnixMilli()
	fresh := make([]domain.Message, 0, len(stored))
	for _, msg := range stored {
		if nowMs-msg.Timestamp < mc.ttl.Milliseconds() {
			fresh = append(fresh, msg)
		}
	}
	mc.messages[channelID] = fresh

	// Возвращаем копию, чтобы вызывающая сторона не могла изменить хранимый срез.
	out := make([]domain.Message, len(fresh))
	copy(out, fresh)
	return out
}

// Remove удаляет одно сообщение канала по идентификатору.
// Используется явным удалением и событиями удаления от платформы.
func (mc *MessageCache) Remove(channelID, messageID string) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	stored, exists := mc.messages[channelID]
	if !exists {
		return
	}

	kept := stored[:0]
	for _, msg := range stored {
		if msg.ID != messageID {
			kept = append(kept, msg)
		}
	}
	mc.messages[channelID] = kept
}

// Len возвращает число сохраненных сообщений канала, включая просроченные,
// которые еще не были вытеснены чтением.
func (mc *MessageCache) Len(channelID string) int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	return len(mc.messages[channelID])
}
