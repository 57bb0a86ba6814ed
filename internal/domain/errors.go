package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки уровня домена. Обработчики HTTP сопоставляют их с кодами ответов,
// ядро никогда не повторяет неудавшиеся вызовы коллабораторов.
var (
	// ErrChannelNotFound возвращается, когда канал не удалось разрешить.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrChannelTypeInvalid возвращается, когда разрешенный пир не может нести текстовые сообщения.
	ErrChannelTypeInvalid = errors.New("invalid channel type")
	// ErrAccountNotFound возвращается, когда пользователь отсутствует в каталоге.
	ErrAccountNotFound = errors.New("account not found")
	// ErrWrongPassword возвращается при несовпадении пароля.
	ErrWrongPassword = errors.New("wrong password")
	// ErrUsernameTaken возвращается, когда имя пользователя уже занято.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrChannelRestricted возвращается, когда вложение отправлено не в медиаканал.
	ErrChannelRestricted = errors.New("attachments are restricted to the media channel")
	// ErrAttachmentRejected возвращается, когда вложение не является допустимым изображением.
	ErrAttachmentRejected = errors.New("attachment rejected")
)

// ValidationError перечисляет ВСЕ отсутствующие обязательные поля запроса,
// а не только первое найденное.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// UpstreamError оборачивает ошибку вызова платформы обмена сообщениями,
// сохраняя деталь для диагностики.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("telegram %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
