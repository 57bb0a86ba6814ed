package usecase

import (
	"context"

	"telegram-chat-bridge/internal/domain"
)

// mockGateway — мок-реализация ports.ChannelGateway для тестирования.
type mockGateway struct {
	ResolveChannelFunc func(ctx context.Context, channelID string) (*domain.Channel, error)
	RecentMessagesFunc func(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
	SendFunc           func(ctx context.Context, channelID, text string) (*domain.Message, error)
	DeleteMessageFunc  func(ctx context.Context, channelID, messageID string) error

	deleteHandler func(channelID string, messageIDs []string)
	sentTexts     []string
	deletedIDs    []string
}

func (m *mockGateway) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	if m.ResolveChannelFunc != nil {
		return m.ResolveChannelFunc(ctx, channelID)
	}
	return &domain.Channel{ID: channelID, Title: channelID, CanPost: true}, nil
}

func (m *mockGateway) RecentMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	if m.RecentMessagesFunc != nil {
		return m.RecentMessagesFunc(ctx, channelID, limit)
	}
	return nil, nil
}

func (m *mockGateway) Send(ctx context.Context, channelID, text string) (*domain.Message, error) {
	m.sentTexts = append(m.sentTexts, text)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, channelID, text)
	}
	return &domain.Message{ID: "1", ChannelID: channelID, Content: text, Source: domain.OriginRemote}, nil
}

func (m *mockGateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	m.deletedIDs = append(m.deletedIDs, messageID)
	if m.DeleteMessageFunc != nil {
		return m.DeleteMessageFunc(ctx, channelID, messageID)
	}
	return nil
}

func (m *mockGateway) SelfUsername() string { return "bridge_bot" }

func (m *mockGateway) OnMessagesDeleted(fn func(channelID string, messageIDs []string)) {
	m.deleteHandler = fn
}

func (m *mockGateway) Health(ctx context.Context) error { return nil }

func (m *mockGateway) KnownChannels() int { return 1 }
