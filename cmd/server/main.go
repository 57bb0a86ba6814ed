package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sevlyar/go-daemon"

	"telegram-chat-bridge/internal/adapters/store"
	"telegram-chat-bridge/internal/cache"
	"telegram-chat-bridge/internal/core/services"
	bridgelog "telegram-chat-bridge/internal/log"
	"telegram-chat-bridge/internal/pkg/config"
	"telegram-chat-bridge/internal/ports"
	"telegram-chat-bridge/internal/server"
	"telegram-chat-bridge/internal/server/usecase"
	"telegram-chat-bridge/internal/telegram"
)

func main() {
	var daemonize bool
	flag.BoolVar(&daemonize, "daemon", false, "Run the server as a background daemon")
	flag.Parse()

	if daemonize {
		cntxt := &daemon.Context{
			PidFileName: "bridge.pid",
			PidFilePerm: 0644,
			LogFileName: "bridge.log",
			LogFilePerm: 0640,
			Umask:       027,
		}

		child, err := cntxt.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			// Родительский процесс: демон запущен, выходим.
			return
		}
		defer cntxt.Release()
	}

	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера с маскировкой учетных данных
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := bridgelog.NewMaskedLogger(handler)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 4. Запуск клиента Telegram
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	tgClient := telegram.NewClient(telegram.Config{
		APIID:         cfg.TelegramAPI.APIID,
		APIHash:       cfg.TelegramAPI.APIHash,
		PhoneNumber:   cfg.TelegramAPI.PhoneNumber,
		SessionPath:   cfg.TelegramAPI.SessionFile,
		DefaultAvatar: cfg.Bridge.DefaultAvatar,
	}, telegram.WithLogger(logger))

	tgClient.Start(appCtx)
	if err := tgClient.WaitReady(appCtx); err != nil {
		return fmt.Errorf("telegram client did not become ready: %w", err)
	}

	// 5. Хранилище каталога пользователей
	var userStore ports.UserStore
	switch cfg.Users.Backend {
	case "sqlite":
		sqlStore, err := store.NewSQLStore("sqlite3", cfg.Users.DSN)
		if err != nil {
			return fmt.Errorf("failed to open user store: %w", err)
		}
		defer sqlStore.Close()
		userStore = sqlStore
	default:
		userStore = store.NewMemoryStore()
	}

	// 6. Сборка сервисов моста
	msgCache := cache.NewMessageCache(cfg.MessageTTL())
	directory := services.NewDirectoryService(userStore, cfg.Bridge.DefaultAvatar, logger)
	aggregator := services.NewMessageAggregator(tgClient.SelfUsername(),
		services.WithRemoteLimit(cfg.Bridge.RemoteFetchLimit),
	)
	relay := usecase.NewChannelRelay(tgClient, msgCache, directory, aggregator,
		usecase.WithMediaChannel(cfg.Bridge.MediaChannel),
		usecase.WithRemoteLimit(cfg.Bridge.RemoteFetchLimit),
		usecase.WithLogger(logger),
	)

	// 7. Создание HTTP-сервера
	srv, err := server.New(cfg, relay, directory, tgClient, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// 8. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := srv.Run(); err != nil {
			slog.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Signal received, shutting down...")

	// Сначала останавливаем HTTP-сервер, затем клиент Telegram.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	<-serverDone
	slog.Info("HTTP server stopped")

	appCancel()
	slog.Info("Application exited gracefully")
	return nil
}
