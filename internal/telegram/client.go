package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	"telegram-chat-bridge/internal/domain"
	"telegram-chat-bridge/internal/ports"
	trm "telegram-chat-bridge/internal/pkg/term"
)

var (
	// ErrFloodWaitActive возвращается, когда клиент не может выполнить запрос из-за активного ограничения FLOOD_WAIT.
	ErrFloodWaitActive = errors.New("client is in flood wait")
	// ErrNotReady возвращается, когда клиент еще не прошел аутентификацию.
	ErrNotReady = errors.New("client is not ready")
	// floodWaitRegex используется для парсинга длительности ожидания из сообщения об ошибке.
	floodWaitRegex = regexp.MustCompile(`FLOOD_WAIT \((\d+)\)`)
)

// telegramAPI представляет необработанные методы API, которые мы используем.
type telegramAPI interface {
	UsersGetUsers(ctx context.Context, request []tg.InputUserClass) ([]tg.UserClass, error)
	ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	ChannelsDeleteMessages(ctx context.Context, request *tg.ChannelsDeleteMessagesRequest) (*tg.MessagesAffectedMessages, error)
	HelpGetConfig(ctx context.Context) (*tg.Config, error)
}

// telegramAuth представляет клиент аутентификации.
type telegramAuth interface {
	auth.FlowClient
}

// telegramRunner определяет зависимости от клиента gotd.
// Это позволяет создавать моки в тестах.
type telegramRunner interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() telegramAPI
	Auth() telegramAuth
}

// prodRunner является оберткой вокруг реального *telegram.Client для удовлетворения интерфейса telegramRunner.
type prodRunner struct {
	*telegram.Client
}

func (p *prodRunner) API() telegramAPI {
	return p.Client.API()
}

func (p *prodRunner) Auth() telegramAuth {
	return p.Client.Auth()
}

// authFlow определяет интерфейс для процесса аутентификации.
type authFlow interface {
	Run(ctx context.Context, client auth.FlowClient) error
}

// resolvedPeer — закешированный результат разрешения канала:
// MTProto требует access hash для каждого обращения к каналу.
type resolvedPeer struct {
	channelID  int64
	accessHash int64
	title      string
	canPost    bool
}

// Client — шлюз моста к Telegram. Оборачивает клиент gotd, инкапсулируя
// аутентификацию, разрешение каналов, нормализацию сообщений, обработку
// FLOOD_WAIT и события удаления.
type Client struct {
	cfg        Config
	tgRunner   telegramRunner
	authFlow   authFlow
	isTerminal func(fd int) bool
	clock      func() time.Time
	log        *slog.Logger

	mu             sync.RWMutex
	unhealthyUntil time.Time
	selfID         int64
	selfUsername   string
	peers          map[string]resolvedPeer // ссылка на канал -> разрешенный пир
	peerRefs       map[int64]string        // обратный индекс для событий удаления
	deleteHandlers []func(channelID string, messageIDs []string)

	ready     chan struct{}
	runErr    chan error
	startOnce sync.Once
}

var _ ports.ChannelGateway = (*Client)(nil)

// Config содержит конфигурацию для создания нового клиента.
type Config struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionPath string
	// DefaultAvatar подставляется сообщениям Telegram: MTProto не дает
	// стабильного публичного URL аватара без скачивания файла.
	DefaultAvatar string
}

// ClientOption определяет функциональную опцию для конфигурации клиента.
type ClientOption func(*Client)

// WithLogger устанавливает логгер для клиента.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient создает новый экземпляр Client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	// Аутентификатор для терминала и файловое хранилище сессии.
	termAuth := trm.NewTerminal(cfg.PhoneNumber)
	sessionStorage := &session.FileStorage{Path: cfg.SessionPath}

	c := &Client{
		cfg:        cfg,
		authFlow:   auth.NewFlow(termAuth, auth.SendCodeOptions{}),
		isTerminal: func(fd int) bool { return term.IsTerminal(fd) },
		clock:      time.Now,
		log:        slog.Default(),
		peers:      make(map[string]resolvedPeer),
		peerRefs:   make(map[int64]string),
		ready:      make(chan struct{}),
		runErr:     make(chan error, 1),
	}

	tgClient := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: sessionStorage,
		UpdateHandler:  telegram.UpdateHandlerFunc(c.handleUpdates),
	})
	c.tgRunner = &prodRunner{Client: tgClient}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start запускает фоновый процесс клиента, включая аутентификацию.
// Должен быть вызван один раз перед использованием клиента.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go func() {
			c.log.InfoContext(ctx, "Starting telegram client background runner")
			err := c.tgRunner.Run(ctx, func(runCtx context.Context) error {
				// Проверяем статус аутентификации при запуске.
				self, err := c.tgRunner.API().UsersGetUsers(runCtx, []tg.InputUserClass{&tg.InputUserSelf{}})
				if err != nil {
					if strings.Contains(err.Error(), "AUTH_KEY_UNREGISTERED") {
						c.log.WarnContext(runCtx, "Session check failed, attempting interactive auth", "reason", "AUTH_KEY_UNREGISTERED")
					} else {
						c.log.WarnContext(runCtx, "Session check failed, attempting interactive auth", "error", err)
					}
					if !c.isTerminal(int(os.Stdout.Fd())) {
						return fmt.Errorf("session is invalid and cannot perform interactive auth in non-terminal: %w", err)
					}
					if authErr := c.authFlow.Run(runCtx, c.tgRunner.Auth()); authErr != nil {
						return fmt.Errorf("interactive auth failed: %w", authErr)
					}
					c.log.InfoContext(runCtx, "Interactive auth successful, session saved")
					if self, err = c.tgRunner.API().UsersGetUsers(runCtx, []tg.InputUserClass{&tg.InputUserSelf{}}); err != nil {
						return fmt.Errorf("self lookup after auth failed: %w", err)
					}
				}
				c.rememberSelf(self)
				c.log.InfoContext(runCtx, "Telegram client authenticated and ready", "self", c.SelfUsername())
				close(c.ready)

				// Держим соединение активным, пока не завершится контекст.
				<-runCtx.Done()
				return runCtx.Err()
			})

			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.ErrorContext(ctx, "Telegram client background runner exited with error", "error", err)
			} else {
				c.log.InfoContext(ctx, "Telegram client background runner stopped")
			}

			c.runErr <- err
			close(c.runErr)
		}()
	})
}

// WaitReady блокируется до завершения аутентификации или отмены контекста.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case err, ok := <-c.runErr:
		if ok && err != nil {
			return fmt.Errorf("telegram client failed to start: %w", err)
		}
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rememberSelf сохраняет идентичность аккаунта моста для фильтрации
// собственных пересланных сообщений.
func (c *Client) rememberSelf(users []tg.UserClass) {
	for _, u := range users {
		if self, ok := u.(*tg.User); ok && self.Self {
			c.mu.Lock()
			c.selfID = self.ID
			if username, ok := self.GetUsername(); ok {
				c.selfUsername = username
			} else {
				c.selfUsername = self.FirstName
			}
			c.mu.Unlock()
			return
		}
	}
}

// SelfUsername возвращает имя аккаунта моста; пустая строка до готовности.
func (c *Client) SelfUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfUsername
}

// KnownChannels возвращает число каналов, разрешенных за время работы.
func (c *Client) KnownChannels() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers)
}

// OnMessagesDeleted регистрирует обработчик событий удаления сообщений.
func (c *Client) OnMessagesDeleted(fn func(channelID string, messageIDs []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteHandlers = append(c.deleteHandlers, fn)
}

// ResolveChannel разрешает публичную ссылку канала в доменную модель.
// Результат кешируется вместе с access hash для последующих вызовов.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	peer, err := c.resolvePeer(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &domain.Channel{ID: channelID, Title: peer.title, CanPost: peer.canPost}, nil
}

// RecentMessages возвращает до limit последних сообщений канала в
// хронологическом порядке, нормализованных в общую модель.
func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	peer, err := c.resolvePeer(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var history tg.MessagesMessagesClass
	c.log.DebugContext(ctx, "Executing API call: MessagesGetHistory", "channel", channelID, "limit", limit)
	err = c.do(ctx, func(ctx context.Context) error {
		res, apiErr := c.tgRunner.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  &tg.InputPeerChannel{ChannelID: peer.channelID, AccessHash: peer.accessHash},
			Limit: limit,
		})
		if apiErr == nil {
			history = res
		}
		return apiErr
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call MessagesGetHistory failed", "channel", channelID, "error", err)
		}
		return nil, err
	}

	return c.normalizeHistory(channelID, peer, history), nil
}

// Send публикует текст в канал от имени аккаунта моста.
func (c *Client) Send(ctx context.Context, channelID, text string) (*domain.Message, error) {
	peer, err := c.resolvePeer(ctx, channelID)
	if err != nil {
		return nil, err
	}

	randomID, err := randomID()
	if err != nil {
		return nil, fmt.Errorf("generate random id: %w", err)
	}

	var updates tg.UpdatesClass
	c.log.DebugContext(ctx, "Executing API call: MessagesSendMessage", "channel", channelID)
	err = c.do(ctx, func(ctx context.Context) error {
		res, apiErr := c.tgRunner.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     &tg.InputPeerChannel{ChannelID: peer.channelID, AccessHash: peer.accessHash},
			Message:  text,
			RandomID: randomID,
		})
		if apiErr == nil {
			updates = res
		}
		return apiErr
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call MessagesSendMessage failed", "channel", channelID, "error", err)
		}
		return nil, err
	}

	msg := domain.Message{
		ID:        sentMessageID(updates),
		ChannelID: channelID,
		Username:  c.SelfUsername(),
		Content:   text,
		Avatar:    c.cfg.DefaultAvatar,
		Timestamp: c.clock().UnixMilli(),
		Source:    domain.OriginRemote,
	}
	return &msg, nil
}

// DeleteMessage удаляет сообщение платформы. Нечисловые идентификаторы
// (веб-сообщения) и уже отсутствующие сообщения не считаются ошибкой.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	id, convErr := strconv.Atoi(messageID)
	if convErr != nil {
		return nil
	}

	peer, err := c.resolvePeer(ctx, channelID)
	if err != nil {
		return err
	}

	c.log.DebugContext(ctx, "Executing API call: ChannelsDeleteMessages", "channel", channelID, "message_id", id)
	err = c.do(ctx, func(ctx context.Context) error {
		// affected.PtsCount == 0 означает, что удалять было нечего; это не ошибка.
		_, apiErr := c.tgRunner.API().ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: peer.channelID, AccessHash: peer.accessHash},
			ID:      []int{id},
		})
		return apiErr
	})
	if err != nil && !errors.Is(err, ErrFloodWaitActive) {
		c.log.WarnContext(ctx, "API call ChannelsDeleteMessages failed", "channel", channelID, "error", err)
	}
	return err
}

// Health проверяет работоспособность клиента.
// Если активен FLOOD_WAIT, возвращает ошибку.
// В противном случае выполняет легковесный запрос к API.
func (c *Client) Health(ctx context.Context) error {
	if err := c.checkHealthStatus(); err != nil {
		return err
	}

	return c.do(ctx, func(ctx context.Context) error {
		_, err := c.tgRunner.API().HelpGetConfig(ctx)
		return err
	})
}

// resolvePeer возвращает закешированный пир канала или разрешает его через API.
func (c *Client) resolvePeer(ctx context.Context, channelID string) (resolvedPeer, error) {
	ref := strings.TrimPrefix(strings.TrimSpace(channelID), "@")

	c.mu.RLock()
	peer, cached := c.peers[ref]
	c.mu.RUnlock()
	if cached {
		if !peer.canPost {
			return resolvedPeer{}, domain.ErrChannelTypeInvalid
		}
		return peer, nil
	}

	var resolved *tg.ContactsResolvedPeer
	c.log.DebugContext(ctx, "Executing API call: ContactsResolveUsername", "channel", ref)
	err := c.do(ctx, func(ctx context.Context) error {
		res, apiErr := c.tgRunner.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: ref})
		if apiErr == nil {
			resolved = res
		}
		return apiErr
	})
	if err != nil {
		if strings.Contains(err.Error(), "USERNAME_NOT_OCCUPIED") || strings.Contains(err.Error(), "USERNAME_INVALID") {
			return resolvedPeer{}, domain.ErrChannelNotFound
		}
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call ContactsResolveUsername failed", "channel", ref, "error", err)
		}
		return resolvedPeer{}, err
	}

	for _, chat := range resolved.Chats {
		channel, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		hash, _ := channel.GetAccessHash()
		peer = resolvedPeer{
			channelID:  channel.ID,
			accessHash: hash,
			title:      channel.Title,
			// Широковещательные каналы не принимают сообщения от обычных
			// участников; мост работает только с группами.
			canPost: channel.Megagroup,
		}

		c.mu.Lock()
		c.peers[ref] = peer
		c.peerRefs[channel.ID] = ref
		c.mu.Unlock()

		if !peer.canPost {
			return resolvedPeer{}, domain.ErrChannelTypeInvalid
		}
		return peer, nil
	}

	// Имя разрешилось в пользователя, а не в канал.
	if len(resolved.Users) > 0 {
		return resolvedPeer{}, domain.ErrChannelTypeInvalid
	}
	return resolvedPeer{}, domain.ErrChannelNotFound
}

// normalizeHistory преобразует ответ MessagesGetHistory в доменные сообщения
// в хронологическом порядке (Telegram отдает историю от новых к старым).
func (c *Client) normalizeHistory(channelID string, peer resolvedPeer, history tg.MessagesMessagesClass) []domain.Message {
	var (
		rawMessages []tg.MessageClass
		rawUsers    []tg.UserClass
	)
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		rawMessages, rawUsers = h.Messages, h.Users
	case *tg.MessagesMessagesSlice:
		rawMessages, rawUsers = h.Messages, h.Users
	case *tg.MessagesMessages:
		rawMessages, rawUsers = h.Messages, h.Users
	default:
		c.log.Warn("Unexpected history response type", "channel", channelID, "type", fmt.Sprintf("%T", history))
		return nil
	}

	usernames := make(map[int64]string, len(rawUsers))
	for _, u := range rawUsers {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		if username, ok := user.GetUsername(); ok {
			usernames[user.ID] = username
		} else {
			usernames[user.ID] = user.FirstName
		}
	}

	c.mu.RLock()
	selfID, selfUsername := c.selfID, c.selfUsername
	c.mu.RUnlock()

	messages := make([]domain.Message, 0, len(rawMessages))
	for i := len(rawMessages) - 1; i >= 0; i-- {
		msg, ok := rawMessages[i].(*tg.Message)
		if !ok || msg.Message == "" {
			continue
		}

		author := peer.title
		if from, ok := msg.GetFromID(); ok {
			if peerUser, ok := from.(*tg.PeerUser); ok {
				if name, ok := usernames[peerUser.UserID]; ok {
					author = name
				}
				if peerUser.UserID == selfID {
					author = selfUsername
				}
			}
		}
		if msg.Out {
			author = selfUsername
		}

		messages = append(messages, domain.Message{
			ID:        strconv.Itoa(msg.ID),
			ChannelID: channelID,
			Username:  author,
			Content:   msg.Message,
			Avatar:    c.cfg.DefaultAvatar,
			Timestamp: int64(msg.Date) * 1000,
			Source:    domain.OriginRemote,
		})
	}
	return messages
}

// handleUpdates обрабатывает поток обновлений gotd, извлекая события
// удаления сообщений каналов. Удаления вне каналов не несут идентификатора
// канала и пропускаются.
func (c *Client) handleUpdates(ctx context.Context, u tg.UpdatesClass) error {
	var updates []tg.UpdateClass
	switch upd := u.(type) {
	case *tg.Updates:
		updates = upd.Updates
	case *tg.UpdatesCombined:
		updates = upd.Updates
	case *tg.UpdateShort:
		updates = []tg.UpdateClass{upd.Update}
	default:
		return nil
	}

	for _, update := range updates {
		deleted, ok := update.(*tg.UpdateDeleteChannelMessages)
		if !ok {
			continue
		}

		c.mu.RLock()
		ref, known := c.peerRefs[deleted.ChannelID]
		handlers := make([]func(string, []string), len(c.deleteHandlers))
		copy(handlers, c.deleteHandlers)
		c.mu.RUnlock()
		if !known {
			continue
		}

		ids := make([]string, 0, len(deleted.Messages))
		for _, id := range deleted.Messages {
			ids = append(ids, strconv.Itoa(id))
		}
		c.log.DebugContext(ctx, "Channel messages deleted on platform", "channel", ref, "count", len(ids))
		for _, fn := range handlers {
			fn(ref, ids)
		}
	}
	return nil
}

// do — это основной метод, который выполняет всю работу.
// Он проверяет состояние FLOOD_WAIT, выполняет операцию и обрабатывает ошибки.
func (c *Client) do(ctx context.Context, f func(ctx context.Context) error) error {
	if err := c.checkHealthStatus(); err != nil {
		c.log.WarnContext(ctx, "Client is unhealthy, aborting request", "error", err)
		return err
	}

	// Предполагается, что c.Start() был вызван, и клиент работает в фоновом режиме.
	opErr := f(ctx)

	if opErr != nil {
		// Обрабатываем специфичные ошибки, такие как FLOOD_WAIT.
		c.handleError(opErr)

		// Также проверяем, не отвалился ли сам клиент.
		select {
		case runErr, ok := <-c.runErr:
			if ok && runErr != nil {
				return fmt.Errorf("telegram client is not running: %w (operation error: %v)", runErr, opErr)
			}
		default:
			// Клиент все еще работает, возвращаем ошибку операции.
		}
	}

	return opErr
}

// checkHealthStatus проверяет, не находится ли клиент в состоянии FLOOD_WAIT.
func (c *Client) checkHealthStatus() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.unhealthyUntil.IsZero() && c.clock().Before(c.unhealthyUntil) {
		return fmt.Errorf("%w: active until %v", ErrFloodWaitActive, c.unhealthyUntil)
	}
	return nil
}

// handleError обрабатывает ошибки, ищет FLOOD_WAIT и обновляет состояние клиента.
func (c *Client) handleError(err error) {
	if waitDuration, ok := parseFloodWait(err); ok {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.unhealthyUntil = c.clock().Add(waitDuration)
		c.log.Warn("Client got FLOOD_WAIT, set unhealthy", "wait_duration", waitDuration, "until", c.unhealthyUntil)
	}
}

// parseFloodWait извлекает длительность ожидания из ошибки.
func parseFloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	matches := floodWaitRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0, false
	}

	seconds, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}

// sentMessageID извлекает идентификатор отправленного сообщения из ответа API.
func sentMessageID(updates tg.UpdatesClass) string {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return strconv.Itoa(u.ID)
	case *tg.Updates:
		for _, upd := range u.Updates {
			switch inner := upd.(type) {
			case *tg.UpdateMessageID:
				return strconv.Itoa(inner.ID)
			case *tg.UpdateNewChannelMessage:
				if msg, ok := inner.Message.(*tg.Message); ok {
					return strconv.Itoa(msg.ID)
				}
			}
		}
	}
	return ""
}

// randomID генерирует случайный идентификатор, который MTProto требует
// для дедупликации отправляемых сообщений.
func randomID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:]) & math.MaxInt64), nil
}
