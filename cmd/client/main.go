package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"telegram-chat-bridge/internal/client"
)

const usage = `Использование: client [flags] <command> [args]

Команды:
  health                                  состояние сервера
  messages <channel>                      лента канала
  send <channel> <username> <content>     публикация сообщения
  delete <channel> <messageID>            удаление сообщения
  register <username> <password>          регистрация пользователя
  login <username> <password>             проверка учетных данных
  profile <username>                      профиль пользователя
  nickname <username> <nickname>          установка отображаемого имени
`

func main() {
	var serverAddr string
	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "Server address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.NewBridgeClient(serverAddr)

	switch args[0] {
	case "health":
		health, err := c.Health(ctx)
		if err != nil {
			log.Fatalf("Не удалось получить состояние сервера: %v", err)
		}
		printJSON(health)

	case "messages":
		requireArgs(args, 2)
		msgs, err := c.Messages(ctx, args[1])
		if err != nil {
			log.Fatalf("Не удалось получить ленту канала: %v", err)
		}
		printJSON(msgs)

	case "send":
		requireArgs(args, 4)
		err := c.Send(ctx, client.SendRequest{
			ChannelID: args[1],
			Username:  args[2],
			Content:   args[3],
		})
		if err != nil {
			log.Fatalf("Не удалось отправить сообщение: %v", err)
		}
		fmt.Println("Сообщение отправлено.")

	case "delete":
		requireArgs(args, 3)
		if err := c.DeleteMessage(ctx, args[1], args[2]); err != nil {
			log.Fatalf("Не удалось удалить сообщение: %v", err)
		}
		fmt.Println("Сообщение удалено.")

	case "register":
		requireArgs(args, 3)
		if err := c.Register(ctx, args[1], args[2], ""); err != nil {
			log.Fatalf("Не удалось зарегистрировать пользователя: %v", err)
		}
		fmt.Println("Пользователь зарегистрирован.")

	case "login":
		requireArgs(args, 3)
		user, err := c.Login(ctx, args[1], args[2])
		if err != nil {
			log.Fatalf("Не удалось войти: %v", err)
		}
		printJSON(user)

	case "profile":
		requireArgs(args, 2)
		user, err := c.Profile(ctx, args[1])
		if err != nil {
			log.Fatalf("Не удалось получить профиль: %v", err)
		}
		printJSON(user)

	case "nickname":
		requireArgs(args, 3)
		nickname := args[2]
		user, err := c.UpdateProfile(ctx, client.ProfileUpdateRequest{
			CurrentUsername: args[1],
			NewNickname:     &nickname,
		})
		if err != nil {
			log.Fatalf("Не удалось обновить профиль: %v", err)
		}
		printJSON(user)

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Не удалось сериализовать ответ: %v", err)
	}
	fmt.Println(string(data))
}
