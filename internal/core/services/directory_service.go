package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"telegram-chat-bridge/internal/domain"
	"telegram-chat-bridge/internal/ports"
)

// Identity — результат разрешения автора для публикации сообщения.
type Identity struct {
	DisplayName string
	Avatar      string
}

// DirectoryService реализует каталог пользователей поверх сменного хранилища:
// таблица в памяти и SQL-база удовлетворяют один и тот же контракт ports.UserStore.
type DirectoryService struct {
	store ports.UserStore
	// defaultAvatar используется для незарегистрированных авторов и как
	// значение по умолчанию при регистрации без аватара.
	defaultAvatar string
	log           *slog.Logger
}

// NewDirectoryService создает новый экземпляр DirectoryService.
func NewDirectoryService(store ports.UserStore, defaultAvatar string, log *slog.Logger) *DirectoryService {
	if log == nil {
		log = slog.Default()
	}
	return &DirectoryService{
		store:         store,
		defaultAvatar: defaultAvatar,
		log:           log,
	}
}

// Register создает новую запись каталога.
// Возвращает domain.ErrUsernameTaken, если имя уже занято.
func (s *DirectoryService) Register(ctx context.Context, username, password, avatar string) (*domain.User, error) {
	if avatar == "" {
		avatar = s.defaultAvatar
	}

	user := &domain.User{
		Username: username,
		Password: password,
		Avatar:   avatar,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}

	s.log.InfoContext(ctx, "User registered", "username", username)
	return user, nil
}

// Authenticate проверяет учетные данные. Пароль сравнивается как есть.
func (s *DirectoryService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.store.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Password != password {
		return nil, domain.ErrWrongPassword
	}
	return user, nil
}

// Find возвращает профиль пользователя по имени.
func (s *DirectoryService) Find(ctx context.Context, username string) (*domain.User, error) {
	return s.store.Find(ctx, username)
}

// ProfileUpdate перечисляет изменяемые поля профиля. Nil-поле означает
// "оставить без изменений"; пустая строка — явная запись пустого значения.
type ProfileUpdate struct {
	NewUsername *string
	NewPassword *string
	NewAvatar   *string
	NewNickname *string
}

// Update изменяет запись существующего пользователя. Смена имени переносит
// запись под новый ключ атомарно с точки зрения вызывающей стороны.
func (s *DirectoryService) Update(ctx context.Context, currentUsername string, upd ProfileUpdate) (*domain.User, error) {
	user, err := s.store.Find(ctx, currentUsername)
	if err != nil {
		return nil, err
	}

	if upd.NewPassword != nil {
		user.Password = *upd.NewPassword
	}
	if upd.NewAvatar != nil {
		user.Avatar = *upd.NewAvatar
	}
	if upd.NewNickname != nil {
		user.Nickname = *upd.NewNickname
	}

	if upd.NewUsername != nil && *upd.NewUsername != currentUsername {
		user.Username = *upd.NewUsername
		if err := s.store.Rename(ctx, currentUsername, user); err != nil {
			return nil, fmt.Errorf("rename user %q: %w", currentUsername, err)
		}
		s.log.InfoContext(ctx, "User renamed", "from", currentUsername, "to", user.Username)
		return user, nil
	}

	if err := s.store.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user %q: %w", currentUsername, err)
	}
	return user, nil
}

// Resolve определяет отображаемое имя и аватар для автора сообщения.
// Зарегистрированный автор получает свой никнейм (или username) и сохраненный
// аватар; незарегистрированный — имя как оно было отправлено и аватар по
// умолчанию. Любая ошибка хранилища, кроме отсутствия записи, пробрасывается.
func (s *DirectoryService) Resolve(ctx context.Context, authorName string) (Identity, error) {
	user, err := s.store.Find(ctx, authorName)
	switch {
	case err == nil:
		return Identity{DisplayName: user.DisplayName(), Avatar: user.Avatar}, nil
	case errors.Is(err, domain.ErrAccountNotFound):
		return Identity{DisplayName: authorName, Avatar: s.defaultAvatar}, nil
	default:
		return Identity{}, fmt.Errorf("resolve author %q: %w", authorName, err)
	}
}
