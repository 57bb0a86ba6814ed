package domain

// Origin указывает происхождение сообщения в объединенной ленте.
type Origin string

const (
	// OriginRemote — сообщение, полученное из истории канала Telegram.
	OriginRemote Origin = "telegram"
	// OriginLocal — сообщение, отправленное через веб-API моста.
	OriginLocal Origin = "web"
)

// Message представляет одно сообщение объединенной ленты канала.
// После создания сообщение не изменяется; локальные сообщения могут быть
// только удалены из кеша (по TTL или явным запросом).
type Message struct {
	// ID уникален в пределах ленты канала. Сообщения Telegram используют
	// идентификатор платформы, веб-сообщения — сгенерированный ID с префиксом "web-".
	ID        string `json:"id"`
	ChannelID string `json:"channelId"`
	// Username — отображаемое имя автора: никнейм зарегистрированного
	// пользователя, иначе имя как оно было отправлено или имя в Telegram.
	Username string `json:"username"`
	Content  string `json:"content"`
	Avatar   string `json:"avatar"`
	// Timestamp — миллисекунды с начала эпохи. Часы платформы и моста могут
	// расходиться, поэтому монотонность между источниками не гарантируется.
	Timestamp  int64  `json:"timestamp"`
	Source     Origin `json:"source"`
	Attachment string `json:"attachment,omitempty"`
}

// Channel представляет канал Telegram, разрешенный шлюзом.
type Channel struct {
	ID    string
	Title string
	// CanPost — может ли мост публиковать текстовые сообщения в канал.
	CanPost bool
}

// User представляет запись каталога пользователей.
type User struct {
	Username string `json:"username"`
	// Password хранится и сравнивается как есть. Хеширование изменило бы
	// наблюдаемое поведение входа, поэтому оставлено как в исходной системе.
	Password string `json:"-"`
	Avatar   string `json:"profilePic"`
	// Nickname — необязательное переопределение отображаемого имени.
	// Пустое значение означает "использовать username".
	Nickname string `json:"nickname"`
}

// DisplayName возвращает имя, под которым публикуются сообщения пользователя.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
