package store

import (
	"context"
	"sync"

	"telegram-chat-bridge/internal/domain"
	"telegram-chat-bridge/internal/ports"
)

// MemoryStore — хранилище каталога пользователей в памяти процесса.
// Записи живут до перезапуска; автоматического удаления нет.
type MemoryStore struct {
	users map[string]*domain.User
	mutex sync.RWMutex
}

var _ ports.UserStore = (*MemoryStore)(nil)

// NewMemoryStore создает новый экземпляр MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*domain.User),
	}
}

// Find возвращает копию записи пользователя по имени.
func (ms *MemoryStore) Find(_ context.Context, username string) (*domain.User, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	user, exists := ms.users[username]
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	copied := *user
	return &copied, nil
}

// Create сохраняет нового пользователя.
func (ms *MemoryStore) Create(_ context.Context, user *domain.User) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.users[user.Username]; exists {
		return domain.ErrUsernameTaken
	}

	copied := *user
	ms.users[user.Username] = &copied
	return nil
}

// Update перезаписывает запись существующего пользователя.
func (ms *MemoryStore) Update(_ context.Context, user *domain.User) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.users[user.Username]; !exists {
		return domain.ErrAccountNotFound
	}

	copied := *user
	ms.users[user.Username] = &copied
	return nil
}

// Rename переносит запись под новый ключ. Обе операции выполняются под одной
// блокировкой: нет состояния, в котором разрешаются оба ключа или ни один.
func (ms *MemoryStore) Rename(_ context.Context, oldUsername string, user *domain.User) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.users[oldUsername]; !exists {
		return domain.ErrAccountNotFound
	}
	if _, exists := ms.users[user.Username]; exists {
		return domain.ErrUsernameTaken
	}

	delete(ms.users, oldUsername)
	copied := *user
	ms.users[user.Username] = &copied
	return nil
}
