package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"lesson_reminder_bot/internal/app"
	"lesson_reminder_bot/internal/infra/config"
	idb "lesson_reminder_bot/internal/infra/database"
	"lesson_reminder_bot/internal/infra/logger"
	"lesson_reminder_bot/internal/infra/scheduler"
	"lesson_reminder_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	fmt.Println("Lesson Reminder Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"postgres":    cfg.UsesPostgres(),
		"db_path":     cfg.DBPath,
		"timezone":    cfg.Location.String(),
	}).Info("Configuration loaded.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	store, err := idb.Open(ctx, idb.Config{
		DatabaseURL: cfg.DatabaseURL,
		Path:        cfg.DBPath,
		Location:    cfg.Location,
	}, logger.Component("database"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open database")
	}
	defer store.Close()

	lessonRepo := idb.NewLessonRepository(store)
	reportRepo := idb.NewReportRepository(store)
	chatRepo := idb.NewChatRepository(store)
	mainLogger.Info("Repositories initialized.")

	// Initialize Telegram Bot
	botLogger := logger.Component("telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	client := telegram.NewTelebotAdapter(bot, cfg.SendRatePerSec)

	// Initialize services
	serviceLogger := logger.Component("app")
	reminderService := app.NewReminderService(lessonRepo, reportRepo, chatRepo, client, serviceLogger, time.Now, cfg.ReminderMessageTTL)
	summaryService := app.NewSummaryService(lessonRepo, chatRepo, client, serviceLogger, time.Now, cfg.Location, cfg.DefaultTeacherName)
	reportService := app.NewReportService(reportRepo, lessonRepo, chatRepo, client, serviceLogger, time.Now)
	lessonService := app.NewLessonService(lessonRepo, reportRepo, chatRepo, client, serviceLogger, time.Now, cfg.DefaultTeacherName)
	mainLogger.Info("Services initialized.")

	// Register Handlers
	handlers := telegram.NewHandlers(lessonService, reportService, cfg.Location, time.Now, logger.Get().WithContext(ctx))
	handlers.Register(ctx, bot)
	mainLogger.Info("Bot handlers registered.")

	reminderScheduler := scheduler.NewReminderScheduler(reminderService, summaryService, scheduler.Options{
		Interval:     cfg.ReminderInterval,
		InitialDelay: cfg.ReminderInitialDelay,
		DailySpec:    cfg.CronSpecDailySummary,
		Location:     cfg.Location,
	}, logger.Get().WithContext(ctx))
	if err := reminderScheduler.Start(ctx); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	mainLogger.Info("Application setup complete. Bot and Scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	reminderScheduler.Stop()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := reminderService.Shutdown(drainCtx); err != nil {
		mainLogger.WithError(err).Warn("Some reminder messages were not retracted")
	}
	cancelDrain()
	bot.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
