package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/QuestPassApp/QuestPass/internal/pkg/cache"
	"github.com/QuestPassApp/QuestPass/internal/pkg/database"
	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
	"github.com/QuestPassApp/QuestPass/internal/pkg/evidencestore"
	"github.com/QuestPassApp/QuestPass/internal/pkg/reviewqueue"
	"github.com/QuestPassApp/QuestPass/internal/pkg/router"
)

func main() {
	app := NewApplication()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))

	// Drains the review intake workers and flushes the outcome counters.
	reviewqueue.GetManager().Stop()

	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	setupReviewIntake()

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, evidence payloads are small JSON documents
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

// setupReviewIntake installs the S3 evidence archiver when one is configured
// and starts the review intake workers plus the counter flush loop.
func setupReviewIntake() {
	cfg, err := evidencestore.LoadConfig()
	if err != nil {
		log.Printf("evidence archive disabled: %v", err)
	} else if cfg.IsEnabled() {
		client, err := evidencestore.NewClient(cfg)
		if err != nil {
			log.Printf("evidence archive disabled: %v", err)
		} else {
			reviewqueue.InitializeManager(client)
		}
	}

	reviewqueue.GetManager().Start()
}
