package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bothive/bothive/internal/pkg/billing"
	"github.com/bothive/bothive/internal/pkg/cache"
	"github.com/bothive/bothive/internal/pkg/database"
	"github.com/bothive/bothive/internal/pkg/env"
	"github.com/bothive/bothive/internal/pkg/external"
	"github.com/bothive/bothive/internal/pkg/health"
	"github.com/bothive/bothive/internal/pkg/knowledge"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	ext := external.NewClientFromEnv()

	scheduler := billing.NewScheduler(db, cache.GetClient(), ext, billing.ConfigFromEnv())
	poller := health.NewPollerFromEnv(db, ext)
	watcher := knowledge.NewWatcherFromEnv(db, ext)

	scheduler.Start()
	poller.Start()
	watcher.Start()

	app := fiber.New(fiber.Config{
		AppName: "bothive",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	// Drain on shutdown: in-flight sweeps and polls finish, nothing aborts
	// mid-transaction.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	scheduler.Stop()
	poller.Stop()
	watcher.Stop()
	_ = app.Shutdown()
	cache.Shutdown()
	log.Println("Shutdown complete")
}
