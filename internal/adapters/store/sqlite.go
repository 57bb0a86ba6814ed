package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"telegram-chat-bridge/internal/domain"
	"telegram-chat-bridge/internal/ports"
)

// SQLStore — хранилище каталога пользователей во внешней базе данных.
// Контракт идентичен MemoryStore; ядро не знает, какая реализация подключена.
type SQLStore struct {
	db *sql.DB
}

var _ ports.UserStore = (*SQLStore)(nil)

// NewSQLStore открывает базу и создает схему при необходимости.
// Недоступность базы — фатальная ошибка запуска, а не ошибка запроса.
func NewSQLStore(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		avatar   TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Find возвращает пользователя по имени.
func (s *SQLStore) Find(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx,
		"SELECT username, password, avatar, nickname FROM users WHERE username = ?", username).
		Scan(&user.Username, &user.Password, &user.Avatar, &user.Nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

// Create сохраняет нового пользователя.
func (s *SQLStore) Create(ctx context.Context, user *domain.User) error {
	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT username FROM users WHERE username = ?", user.Username).Scan(&existing)
	if err == nil {
		return domain.ErrUsernameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check username: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (username, password, avatar, nickname) VALUES (?, ?, ?, ?)",
		user.Username, user.Password, user.Avatar, user.Nickname)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update перезаписывает запись существующего пользователя.
func (s *SQLStore) Update(ctx context.Context, user *domain.User) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password = ?, avatar = ?, nickname = ? WHERE username = ?",
		user.Password, user.Avatar, user.Nickname, user.Username)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Rename переносит запись под новый ключ в одной транзакции.
func (s *SQLStore) Rename(ctx context.Context, oldUsername string, user *domain.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT username FROM users WHERE username = ?", user.Username).Scan(&existing)
	if err == nil {
		return domain.ErrUsernameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check new username: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET username = ?, password = ?, avatar = ?, nickname = ? WHERE username = ?",
		user.Username, user.Password, user.Avatar, user.Nickname, oldUsername)
	if err != nil {
		return fmt.Errorf("rename user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename user: %w", err)
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rename: %w", err)
	}
	return nil
}
