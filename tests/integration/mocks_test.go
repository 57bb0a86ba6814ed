package integration

import (
	"context"
	"sync"

	"telegram-chat-bridge/internal/domain"
)

// mockGateway — мок-реализация ports.ChannelGateway: держит историю каналов
// в памяти и записывает пересланные тексты.
type mockGateway struct {
	mu            sync.Mutex
	history       map[string][]domain.Message
	sentTexts     []string
	deletedIDs    []string
	deleteHandler func(channelID string, messageIDs []string)
	selfUsername  string
}

func newMockGateway(selfUsername string) *mockGateway {
	return &mockGateway{
		history:      map[string][]domain.Message{},
		selfUsername: selfUsername,
	}
}

func (m *mockGateway) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[channelID]; !ok {
		return nil, domain.ErrChannelNotFound
	}
	return &domain.Channel{ID: channelID, Title: channelID, CanPost: true}, nil
}

func (m *mockGateway) RecentMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.history[channelID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *mockGateway) Send(ctx context.Context, channelID, text string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentTexts = append(m.sentTexts, text)
	return &domain.Message{ID: "100", ChannelID: channelID, Content: text, Source: domain.OriginRemote}, nil
}

func (m *mockGateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedIDs = append(m.deletedIDs, messageID)
	return nil
}

func (m *mockGateway) SelfUsername() string { return m.selfUsername }

func (m *mockGateway) OnMessagesDeleted(fn func(channelID string, messageIDs []string)) {
	m.deleteHandler = fn
}

func (m *mockGateway) Health(ctx context.Context) error { return nil }

func (m *mockGateway) KnownChannels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// seed добавляет сообщение в историю канала.
func (m *mockGateway) seed(channelID string, msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[channelID] = append(m.history[channelID], msg)
}

// sent возвращает копию пересланных текстов.
func (m *mockGateway) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sentTexts))
	copy(out, m.sentTexts)
	return out
}
