package services

import (
	"sort"

	"telegram-chat-bridge/internal/domain"
)

// DefaultRemoteLimit — максимальный вклад Telegram в один вызов слияния.
const DefaultRemoteLimit = 50

// MessageAggregator сливает сообщения двух разнородных источников —
// истории Telegram и веб-кеша — в одну упорядоченную ленту.
type MessageAggregator struct {
	// selfUsername — аккаунт моста. Его сообщения в истории Telegram являются
	// артефактами собственной пересылки и отфильтровываются.
	selfUsername string
	remoteLimit  int
}

// AggregatorOption определяет функциональную опцию для конфигурации агрегатора.
type AggregatorOption func(*MessageAggregator)

// WithRemoteLimit устанавливает максимальное число сообщений Telegram в слиянии.
func WithRemoteLimit(n int) AggregatorOption {
	return func(a *MessageAggregator) {
		if n > 0 {
			a.remoteLimit = n
		}
	}
}

// NewMessageAggregator создает новый экземпляр MessageAggregator.
// selfUsername может быть пустым, если фильтр собственных сообщений не нужен.
func NewMessageAggregator(selfUsername string, opts ...AggregatorOption) *MessageAggregator {
	a := &MessageAggregator{
		selfUsername: selfUsername,
		remoteLimit:  DefaultRemoteLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Merge объединяет сообщения Telegram и веб-кеша в одну ленту,
// отсортированную по Timestamp по возрастанию (хронологически, старые первыми).
// Сортировка стабильная: равные метки времени сохраняют порядок входа.
// Дедупликации по содержимому нет: веб-сообщение хранится локально и не
// ожидается в том же окне выборки из Telegram при нормальной работе.
func (a *MessageAggregator) Merge(remote, local []domain.Message) []domain.Message {
	remote = a.capRemote(remote)

	merged := make([]domain.Message, 0, len(remote)+len(local))
	merged = append(merged, remote...)
	merged = append(merged, local...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// capRemote отфильтровывает сообщения аккаунта моста и ограничивает вклад
// Telegram последними remoteLimit сообщениями. Вход упорядочен шлюзом
// хронологически, поэтому "последние" — это хвост среза.
func (a *MessageAggregator) capRemote(remote []domain.Message) []domain.Message {
	kept := make([]domain.Message, 0, len(remote))
	for _, msg := range remote {
		if a.selfUsername != "" && msg.Username == a.selfUsername {
			continue
		}
		kept = append(kept, msg)
	}

	if len(kept) > a.remoteLimit {
		kept = kept[len(kept)-a.remoteLimit:]
	}
	return kept
}
