// Package client — клиент для взаимодействия с API сервера-моста.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"telegram-chat-bridge/internal/domain"
)

// BridgeClient — клиент для взаимодействия с API сервера-моста.
type BridgeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridgeClient создает новый экземпляр BridgeClient.
func NewBridgeClient(baseURL string) *BridgeClient {
	return &BridgeClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Общий таймаут для запросов
		},
	}
}

// HealthResponse — ответ конечной точки /health.
type HealthResponse struct {
	Status       string `json:"status"`
	BotStatus    string `json:"botStatus"`
	ChannelCount int    `json:"channelCount"`
}

// SendRequest — тело запроса публикации сообщения.
type SendRequest struct {
	ChannelID   string   `json:"channelId"`
	Username    string   `json:"username"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// errorResponse — тело ошибки сервера.
type errorResponse struct {
	Error string `json:"error"`
}

// Health запрашивает состояние сервера и соединения с платформой.
func (c *BridgeClient) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Messages возвращает объединенную ленту канала.
func (c *BridgeClient) Messages(ctx context.Context, channelID string) ([]domain.Message, error) {
	var result []domain.Message
	path := "/messages/" + url.PathEscape(channelID)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Send публикует веб-сообщение в канал.
func (c *BridgeClient) Send(ctx context.Context, req SendRequest) error {
	return c.do(ctx, http.MethodPost, "/send", req, http.StatusOK, nil)
}

// DeleteMessage удаляет сообщение из ленты канала.
func (c *BridgeClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/messages/" + url.PathEscape(channelID) + "/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, nil)
}

// Register регистрирует нового пользователя каталога.
func (c *BridgeClient) Register(ctx context.Context, username, password, profilePic string) error {
	body := map[string]string{
		"username":   username,
		"password":   password,
		"profilePic": profilePic,
	}
	return c.do(ctx, http.MethodPost, "/register", body, http.StatusOK, nil)
}

// Login проверяет учетные данные пользователя.
func (c *BridgeClient) Login(ctx context.Context, username, password string) (*domain.User, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var result domain.User
	if err := c.do(ctx, http.MethodPost, "/login", body, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Profile возвращает профиль пользователя по имени.
func (c *BridgeClient) Profile(ctx context.Context, username string) (*domain.User, error) {
	var result domain.User
	path := "/user/" + url.PathEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProfileUpdateRequest — тело запроса изменения профиля. Nil-поле
// означает "оставить без изменений".
type ProfileUpdateRequest struct {
	CurrentUsername string  `json:"currentUsername"`
	NewUsername     *string `json:"newUsername,omitempty"`
	NewPassword     *string `json:"newPassword,omitempty"`
	NewProfilePic   *string `json:"newProfilePic,omitempty"`
	NewNickname     *string `json:"newNickname,omitempty"`
}

// UpdateProfile изменяет профиль пользователя.
func (c *BridgeClient) UpdateProfile(ctx context.Context, req ProfileUpdateRequest) (*domain.User, error) {
	var result domain.User
	if err := c.do(ctx, http.MethodPut, "/user", req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do выполняет запрос и декодирует ответ. Несовпадение кода состояния
// превращается в ошибку с текстом из тела ответа сервера.
func (c *BridgeClient) do(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errResp errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
