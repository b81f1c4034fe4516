package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"dripmail/config"
	controller "dripmail/controllers"
	"dripmail/middleware"
	"dripmail/routes"
	"dripmail/scheduler"
	"dripmail/store"
	"dripmail/utils"
	"dripmail/worker"
)

func main() {
	logger := log.New(os.Stdout, "DRIPMAIL: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Fatalf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Stores
	campaigns := store.NewCampaignStore(config.DB)
	contacts := store.NewContactStore(config.DB)
	sequences := store.NewSequenceStore(config.DB)
	history := store.NewHistoryStore(config.DB)
	senders := store.NewSenderStore(config.DB)

	// Scheduler
	renderer := utils.NewTemplateRenderer(config.DB, config.AppConfig.BaseURL)
	mailer := utils.NewSMTPMailer()
	loop := scheduler.NewLoop(
		campaigns, contacts, sequences, history, senders,
		renderer, mailer,
		config.AppConfig.SchedulerConcurrency,
		config.AppConfig.DispatchTimeout,
		log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags),
	)
	reporter := scheduler.NewStatusReporter(contacts, sequences, history)
	hub := controller.NewProgressHub(log.New(os.Stdout, "WS: ", log.LstdFlags))

	// Workers
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sequenceWorker := worker.NewSequenceWorker(loop, config.AppConfig.SchedulerInterval, hub,
		log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	go sequenceWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(senders, history, contacts, campaigns,
		config.AppConfig.ReplyPollInterval, log.New(os.Stdout, "REPLY: ", log.LstdFlags))
	go replyWorker.Start(ctx)

	quotaWorker := worker.NewQuotaResetWorker(senders, log.New(os.Stdout, "QUOTA: ", log.LstdFlags))
	go quotaWorker.Start(ctx)

	// HTTP server
	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, routes.Deps{
		DB:       config.DB,
		Loop:     loop,
		Reporter: reporter,
		Hub:      hub,
		Contacts: contacts,
		History:  history,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	go func() {
		<-ctx.Done()
		logger.Println("Shutting down...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
