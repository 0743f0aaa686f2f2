package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/harshror77/Chaudhary-Estate/internal/notify"
	"github.com/harshror77/Chaudhary-Estate/internal/realtime"
	"github.com/harshror77/Chaudhary-Estate/internal/server"
	"github.com/harshror77/Chaudhary-Estate/internal/server/handlers"
	"github.com/harshror77/Chaudhary-Estate/internal/store"
	"github.com/harshror77/Chaudhary-Estate/pkg/config"
	"github.com/harshror77/Chaudhary-Estate/pkg/logging"
	"github.com/harshror77/Chaudhary-Estate/pkg/state/statemanager"
)

func main() {
	_ = godotenv.Load()

	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenDB(cfg.Store.Path)
	if err != nil {
		logger.Error("Failed to open database", slog.String("path", cfg.Store.Path), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	messageStore, err := store.NewMessageStore(db)
	if err != nil {
		logger.Error("Failed to initialize message store", slog.Any("error", err))
		os.Exit(1)
	}
	notificationStore, err := store.NewNotificationStore(db)
	if err != nil {
		logger.Error("Failed to initialize notification store", slog.Any("error", err))
		os.Exit(1)
	}
	directory, err := store.NewDirectory(db)
	if err != nil {
		logger.Error("Failed to initialize directory", slog.Any("error", err))
		os.Exit(1)
	}

	stateManager := statemanager.NewInMemoryManager(logger)
	gateway := realtime.NewGateway(logger, stateManager)
	dispatcher := notify.NewDispatcher(logger, notificationStore, directory, gateway)

	app := server.NewApp(logger, ctx, cfg, stateManager, gateway,
		handlers.NewMessageHandler(logger, messageStore, gateway),
		handlers.NewNotificationHandler(logger, notificationStore, dispatcher),
	)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
