package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"telegram-chat-bridge/internal/core/services"
	"telegram-chat-bridge/internal/domain"
	"telegram-chat-bridge/internal/pkg/config"
	"telegram-chat-bridge/internal/server/usecase"
)

// MessageRelay определяет интерфейс для варианта использования, который обслуживает ленту каналов.
type MessageRelay interface {
	GetFeed(ctx context.Context, channelID string) ([]domain.Message, error)
	PostMessage(ctx context.Context, req usecase.PostRequest) (*domain.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// UserDirectory определяет интерфейс каталога пользователей для HTTP-слоя.
type UserDirectory interface {
	Register(ctx context.Context, username, password, avatar string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Find(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, currentUsername string, upd services.ProfileUpdate) (*domain.User, error)
}

// HealthSource сообщает о состоянии соединения с платформой.
type HealthSource interface {
	Health(ctx context.Context) error
	KnownChannels() int
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	relay      MessageRelay
	directory  UserDirectory
	health     HealthSource
	log        *slog.Logger
}

// New создает новый экземпляр Server
func New(cfg *config.Config, relay MessageRelay, directory UserDirectory, health HealthSource, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	// CORS: мост обслуживает ровно один origin веб-клиента.
	chiRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.Bridge.AllowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	// Конечная точка для проверки работоспособности
	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		botStatus := "ok"
		if err := health.Health(r.Context()); err != nil {
			botStatus = "degraded"
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "ok",
			"botStatus":    botStatus,
			"channelCount": health.KnownChannels(),
		})
	})

	// Лента канала: история Telegram плюс свежие веб-сообщения.
	chiRouter.Get("/messages/{channelID}", func(w http.ResponseWriter, r *http.Request) {
		channelID := chi.URLParam(r, "channelID")

		messages, err := relay.GetFeed(r.Context(), channelID)
		if err != nil {
			log.Error("Failed to build channel feed", "channel_id", channelID, "error", err)
			respondError(w, errorStatus(err), err.Error())
			return
		}
		if messages == nil {
			messages = []domain.Message{}
		}
		respondJSON(w, http.StatusOK, messages)
	})

	// Публикация веб-сообщения с пересылкой в Telegram.
	chiRouter.Post("/send", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChannelID   string   `json:"channelId"`
			Username    string   `json:"username"`
			Content     string   `json:"content"`
			Attachments []string `json:"attachments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		msg, err := relay.PostMessage(r.Context(), usecase.PostRequest{
			ChannelID:   req.ChannelID,
			Username:    req.Username,
			Content:     req.Content,
			Attachments: req.Attachments,
		})
		if err != nil {
			log.Error("Failed to post message", "channel_id", req.ChannelID, "error", err)
			respondError(w, errorStatus(err), err.Error())
			return
		}
		log.Debug("Message posted", "channel_id", req.ChannelID, "message_id", msg.ID)
		respondSuccess(w)
	})

	// Удаление сообщения из кеша и, для сообщений Telegram, с платформы.
	chiRouter.Delete("/messages/{channelID}/{messageID}", func(w http.ResponseWriter, r *http.Request) {
		channelID := chi.URLParam(r, "channelID")
		messageID := chi.URLParam(r, "messageID")

		if err := relay.DeleteMessage(r.Context(), channelID, messageID); err != nil {
			log.Error("Failed to delete message", "channel_id", channelID, "message_id", messageID, "error", err)
			respondError(w, errorStatus(err), err.Error())
			return
		}
		respondSuccess(w)
	})

	// Каталог пользователей
	chiRouter.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username   string `json:"username"`
			Password   string `json:"password"`
			ProfilePic string `json:"profilePic"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var missing []string
		if strings.TrimSpace(req.Username) == "" {
			missing = append(missing, "username")
		}
		if req.Password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			respondError(w, http.StatusBadRequest, (&domain.ValidationError{Fields: missing}).Error())
			return
		}

		user, err := directory.Register(r.Context(), strings.TrimSpace(req.Username), req.Password, req.ProfilePic)
		if err != nil {
			respondError(w, errorStatus(err), err.Error())
			return
		}
		log.Debug("User registered", "username", user.Username)
		respondSuccess(w)
	})

	chiRouter.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := directory.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			// Неизвестное имя при входе — ошибка учетных данных, а не адресации:
			// клиент получает 400, как и при неверном пароле.
			if errors.Is(err, domain.ErrAccountNotFound) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			respondError(w, errorStatus(err), err.Error())
			return
		}
		respondJSON(w, http.StatusOK, user)
	})

	chiRouter.Get("/user/{username}", func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")

		user, err := directory.Find(r.Context(), username)
		if err != nil {
			respondError(w, errorStatus(err), err.Error())
			return
		}
		respondJSON(w, http.StatusOK, user)
	})

	chiRouter.Put("/user", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CurrentUsername string  `json:"currentUsername"`
			NewUsername     *string `json:"newUsername"`
			NewPassword     *string `json:"newPassword"`
			NewProfilePic   *string `json:"newProfilePic"`
			NewNickname     *string `json:"newNickname"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.CurrentUsername) == "" {
			respondError(w, http.StatusBadRequest, (&domain.ValidationError{Fields: []string{"currentUsername"}}).Error())
			return
		}

		user, err := directory.Update(r.Context(), req.CurrentUsername, services.ProfileUpdate{
			NewUsername: req.NewUsername,
			NewPassword: req.NewPassword,
			NewAvatar:   req.NewProfilePic,
			NewNickname: req.NewNickname,
		})
		if err != nil {
			respondError(w, errorStatus(err), err.Error())
			return
		}
		respondJSON(w, http.StatusOK, user)
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		cfg:        cfg,
		relay:      relay,
		directory:  directory,
		health:     health,
		log:        log,
	}, nil
}

// Run запускает HTTP-сервер и блокируется до его остановки
func (s *Server) Run() error {
	s.log.Info("Starting HTTP server", "address", s.HTTPServer.Addr)
	if err := s.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно останавливает HTTP-сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTPServer.Shutdown(ctx)
}

// errorStatus отображает доменные ошибки в коды состояния HTTP
func errorStatus(err error) int {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrChannelNotFound),
		errors.Is(err, domain.ErrChannelTypeInvalid),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWrongPassword),
		errors.Is(err, domain.ErrUsernameTaken):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrChannelRestricted),
		errors.Is(err, domain.ErrAttachmentRejected):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondSuccess(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
