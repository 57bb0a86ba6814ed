package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-chat-bridge/internal/domain"
)

// --- Mocks ---

type mockTelegramAPI struct {
	mock.Mock
}

func (m *mockTelegramAPI) UsersGetUsers(ctx context.Context, req []tg.InputUserClass) ([]tg.UserClass, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).([]tg.UserClass)
	return res, args.Error(1)
}

func (m *mockTelegramAPI) ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*tg.ContactsResolvedPeer)
	return res, args.Error(1)
}

func (m *mockTelegramAPI) MessagesGetHistory(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(tg.MessagesMessagesClass)
	return res, args.Error(1)
}

func (m *mockTelegramAPI) MessagesSendMessage(ctx context.Context, req *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(tg.UpdatesClass)
	return res, args.Error(1)
}

func (m *mockTelegramAPI) ChannelsDeleteMessages(ctx context.Context, req *tg.ChannelsDeleteMessagesRequest) (*tg.MessagesAffectedMessages, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*tg.MessagesAffectedMessages)
	return res, args.Error(1)
}

func (m *mockTelegramAPI) HelpGetConfig(ctx context.Context) (*tg.Config, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*tg.Config)
	return res, args.Error(1)
}

type mockTelegramRunner struct {
	api *mockTelegramAPI
}

func (m *mockTelegramRunner) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}

func (m *mockTelegramRunner) API() telegramAPI {
	return m.api
}

func (m *mockTelegramRunner) Auth() telegramAuth {
	return nil
}

type mockAuthFlow struct {
	mock.Mock
}

func (m *mockAuthFlow) Run(ctx context.Context, client auth.FlowClient) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

// --- Test Clock ---

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{now: t}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Helper to create a test client ---

func newTestClient(t *testing.T) (*Client, *mockTelegramAPI, *manualClock) {
	t.Helper()

	api := new(mockTelegramAPI)
	clock := newManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	client := &Client{
		cfg:        Config{DefaultAvatar: "https://example.org/default.png"},
		tgRunner:   &mockTelegramRunner{api: api},
		authFlow:   new(mockAuthFlow),
		isTerminal: func(fd int) bool { return true },
		clock:      clock.Now,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		peers:      make(map[string]resolvedPeer),
		peerRefs:   make(map[int64]string),
		ready:      make(chan struct{}),
		runErr:     make(chan error, 1),
	}
	return client, api, clock
}

func megagroupResolved(id, hash int64, title string) *tg.ContactsResolvedPeer {
	channel := &tg.Channel{ID: id, Title: title, Megagroup: true}
	channel.SetAccessHash(hash)
	return &tg.ContactsResolvedPeer{
		Peer:  &tg.PeerChannel{ChannelID: id},
		Chats: []tg.ChatClass{channel},
	}
}

// --- Tests ---

func TestClient_ResolveChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("Megagroup", func(t *testing.T) {
		client, api, _ := newTestClient(t)
		api.On("ContactsResolveUsername", ctx, mock.MatchedBy(func(req *tg.ContactsResolveUsernameRequest) bool {
			return req.Username == "studyhall"
		})).Return(megagroupResolved(200, 777, "StudyHall"), nil).Once()

		channel, err := client.ResolveChannel(ctx, "@studyhall")
		require.NoError(t, err)
		assert.Equal(t, "StudyHall", channel.Title)
		assert.True(t, channel.CanPost)

		// Повторное разрешение обслуживается из кеша: мок допускает один вызов.
		_, err = client.ResolveChannel(ctx, "studyhall")
		require.NoError(t, err)
		assert.Equal(t, 1, client.KnownChannels())
		api.AssertExpectations(t)
	})

	t.Run("BroadcastChannelIsInvalidType", func(t *testing.T) {
		client, api, _ := newTestClient(t)
		channel := &tg.Channel{ID: 300, Title: "Announcements", Broadcast: true}
		channel.SetAccessHash(1)
		api.On("ContactsResolveUsername", ctx, mock.Anything).Return(&tg.ContactsResolvedPeer{
			Chats: []tg.ChatClass{channel},
		}, nil).Once()

		_, err := client.ResolveChannel(ctx, "announcements")
		assert.ErrorIs(t, err, domain.ErrChannelTypeInvalid)
	})

	t.Run("UserIsInvalidType", func(t *testing.T) {
		client, api, _ := newTestClient(t)
		api.On("ContactsResolveUsername", ctx, mock.Anything).Return(&tg.ContactsResolvedPeer{
			Users: []tg.UserClass{&tg.User{ID: 1}},
		}, nil).Once()

		_, err := client.ResolveChannel(ctx, "somebody")
		assert.ErrorIs(t, err, domain.ErrChannelTypeInvalid)
	})

	t.Run("UnknownUsername", func(t *testing.T) {
		client, api, _ := newTestClient(t)
		api.On("ContactsResolveUsername", ctx, mock.Anything).
			Return(nil, errors.New("rpc error code 400: USERNAME_NOT_OCCUPIED")).Once()

		_, err := client.ResolveChannel(ctx, "ghost")
		assert.ErrorIs(t, err, domain.ErrChannelNotFound)
	})
}

func TestClient_RecentMessages(t *testing.T) {
	ctx := context.Background()
	client, api, _ := newTestClient(t)
	client.selfID = 42
	client.selfUsername = "bridge_bot"

	api.On("ContactsResolveUsername", ctx, mock.Anything).Return(megagroupResolved(200, 777, "StudyHall"), nil).Once()

	alice := &tg.User{ID: 1, FirstName: "Alice"}
	alice.SetUsername("alice")
	msg102 := &tg.Message{ID: 102, Message: "second", Date: 1700000100}
	msg102.SetFromID(&tg.PeerUser{UserID: 1})
	msg101 := &tg.Message{ID: 101, Message: "bridge echo", Date: 1700000050}
	msg101.SetFromID(&tg.PeerUser{UserID: 42})
	msg100 := &tg.Message{ID: 100, Message: "first", Date: 1700000000}
	msg100.SetFromID(&tg.PeerUser{UserID: 1})
	history := &tg.MessagesChannelMessages{
		// Telegram отдает историю от новых к старым.
		Messages: []tg.MessageClass{msg102, msg101, msg100},
		Users:    []tg.UserClass{alice},
	}
	api.On("MessagesGetHistory", ctx, mock.MatchedBy(func(req *tg.MessagesGetHistoryRequest) bool {
		peer, ok := req.Peer.(*tg.InputPeerChannel)
		return ok && peer.ChannelID == 200 && peer.AccessHash == 777 && req.Limit == 50
	})).Return(history, nil).Once()

	messages, err := client.RecentMessages(ctx, "studyhall", 50)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Хронологический порядок, старые первыми.
	assert.Equal(t, "100", messages[0].ID)
	assert.Equal(t, "alice", messages[0].Username)
	assert.Equal(t, int64(1700000000)*1000, messages[0].Timestamp)
	assert.Equal(t, domain.OriginRemote, messages[0].Source)
	assert.Equal(t, "https://example.org/default.png", messages[0].Avatar)

	// Сообщение аккаунта моста несет его имя: агрегатор отфильтрует его.
	assert.Equal(t, "bridge_bot", messages[1].Username)

	api.AssertExpectations(t)
}

func TestClient_Send(t *testing.T) {
	ctx := context.Background()
	client, api, clock := newTestClient(t)
	client.selfUsername = "bridge_bot"

	api.On("ContactsResolveUsername", ctx, mock.Anything).Return(megagroupResolved(200, 777, "StudyHall"), nil).Once()
	api.On("MessagesSendMessage", ctx, mock.MatchedBy(func(req *tg.MessagesSendMessageRequest) bool {
		return req.Message == "**carol**: hi" && req.RandomID != 0
	})).Return(&tg.UpdateShortSentMessage{ID: 555}, nil).Once()

	msg, err := client.Send(ctx, "studyhall", "**carol**: hi")
	require.NoError(t, err)

	assert.Equal(t, "555", msg.ID)
	assert.Equal(t, "bridge_bot", msg.Username)
	assert.Equal(t, clock.Now().UnixMilli(), msg.Timestamp)
	assert.Equal(t, domain.OriginRemote, msg.Source)
	api.AssertExpectations(t)
}

func TestClient_DeleteMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("NumericID", func(t *testing.T) {
		client, api, _ := newTestClient(t)
		api.On("ContactsResolveUsername", ctx, mock.Anything).Return(megagroupResolved(200, 777, "StudyHall"), nil).Once()
		api.On("ChannelsDeleteMessages", ctx, mock.MatchedBy(func(req *tg.ChannelsDeleteMessagesRequest) bool {
			return len(req.ID) == 1 && req.ID[0] == 555
		})).Return(&tg.MessagesAffectedMessages{}, nil).Once()

		require.NoError(t, client.DeleteMessage(ctx, "studyhall", "555"))
		api.AssertExpectations(t)
	})

	t.Run("WebIDIsNoOp", func(t *testing.T) {
		client, api, _ := newTestClient(t)

		require.NoError(t, client.DeleteMessage(ctx, "studyhall", "web-abc"))
		api.AssertNotCalled(t, "ChannelsDeleteMessages", mock.Anything, mock.Anything)
	})
}

func TestClient_FloodWait(t *testing.T) {
	ctx := context.Background()
	client, api, clock := newTestClient(t)

	api.On("HelpGetConfig", ctx).Return(nil, errors.New("rpc error code 420: FLOOD_WAIT (30)")).Once()

	// Первый вызов получает FLOOD_WAIT и помечает клиент нездоровым.
	err := client.Health(ctx)
	require.Error(t, err)

	// Пока окно не прошло, запросы отклоняются без обращения к API.
	err = client.Health(ctx)
	assert.ErrorIs(t, err, ErrFloodWaitActive)

	// После окна клиент снова здоров.
	clock.Advance(31 * time.Second)
	api.On("HelpGetConfig", ctx).Return(&tg.Config{}, nil).Once()
	assert.NoError(t, client.Health(ctx))

	api.AssertExpectations(t)
}

func TestClient_DeleteEventsDispatch(t *testing.T) {
	ctx := context.Background()
	client, api, _ := newTestClient(t)

	api.On("ContactsResolveUsername", ctx, mock.Anything).Return(megagroupResolved(200, 777, "StudyHall"), nil).Once()
	_, err := client.ResolveChannel(ctx, "studyhall")
	require.NoError(t, err)

	var gotChannel string
	var gotIDs []string
	client.OnMessagesDeleted(func(channelID string, messageIDs []string) {
		gotChannel = channelID
		gotIDs = messageIDs
	})

	err = client.handleUpdates(ctx, &tg.Updates{
		Updates: []tg.UpdateClass{
			&tg.UpdateDeleteChannelMessages{ChannelID: 200, Messages: []int{101, 102}},
			// Канал, который мост не разрешал, игнорируется.
			&tg.UpdateDeleteChannelMessages{ChannelID: 999, Messages: []int{1}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "studyhall", gotChannel)
	assert.Equal(t, []string{"101", "102"}, gotIDs)
}

func TestParseFloodWait(t *testing.T) {
	_, ok := parseFloodWait(nil)
	assert.False(t, ok)

	_, ok = parseFloodWait(errors.New("some other error"))
	assert.False(t, ok)

	d, ok := parseFloodWait(errors.New("rpc error code 420: FLOOD_WAIT (15)"))
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, d)
}
