package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// Terminal обеспечивает интерактивную аутентификацию аккаунта моста через
// терминал: код подтверждения и пароль 2FA запрашиваются у оператора при
// первом запуске, далее используется сохраненная сессия.
// Реализует интерфейс auth.UserAuthenticator.
type Terminal struct {
	phone   string
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
	// readPassword подменяется в тестах: чтение без эха требует настоящего tty.
	readPassword func(fd int) ([]byte, error)
}

var _ auth.UserAuthenticator = (*Terminal)(nil)

// Option определяет функциональную опцию для конфигурации Terminal.
type Option func(*Terminal)

// WithInput подменяет источник ввода. Используется в тестах.
func WithInput(r io.Reader) Option {
	return func(t *Terminal) {
		t.in = bufio.NewReader(r)
	}
}

// WithOutput подменяет приемник вывода. Используется в тестах.
func WithOutput(w io.Writer) Option {
	return func(t *Terminal) {
		t.out = w
	}
}

// NewTerminal создает новый экземпляр Terminal.
func NewTerminal(phone string, opts ...Option) *Terminal {
	t := &Terminal{
		phone:        phone,
		in:           bufio.NewReader(os.Stdin),
		out:          os.Stdout,
		stdinfd:      int(os.Stdin.Fd()),
		readPassword: term.ReadPassword,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Phone возвращает номер телефона аккаунта моста.
func (t *Terminal) Phone(_ context.Context) (string, error) {
	return t.phone, nil
}

// Password запрашивает пароль 2FA.
func (t *Terminal) Password(_ context.Context) (string, error) {
	fmt.Fprint(t.out, "Enter 2FA password: ")
	bytePwd, err := t.readPassword(t.stdinfd)
	if err != nil {
		return "", err
	}
	fmt.Fprintln(t.out)
	return string(bytePwd), nil
}

// AcceptTermsOfService принимает Условия обслуживания.
func (t *Terminal) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	fmt.Fprintf(t.out, "Accepting Terms of Service: %s\n", tos.Text)
	return nil
}

// Code запрашивает код подтверждения.
func (t *Terminal) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Fprint(t.out, "Enter code: ")
	code, err := t.in.ReadString('\n')
	if err != nil {
		return "", xerrors.Errorf("failed to read code: %w", err)
	}
	return strings.TrimSpace(code), nil
}

// SignUp не реализован: мост работает только с существующим аккаунтом.
func (t *Terminal) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, xerrors.New("signup not implemented")
}
