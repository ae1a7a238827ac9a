package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crmhawkins/comurban-sub001/internal/incident"
	"github.com/crmhawkins/comurban-sub001/internal/queue"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/service"
	"github.com/crmhawkins/comurban-sub001/internal/settings"
	"github.com/crmhawkins/comurban-sub001/internal/wacloud"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
	"github.com/crmhawkins/comurban-sub001/pkg/cache"
	"github.com/crmhawkins/comurban-sub001/pkg/config"
	"github.com/crmhawkins/comurban-sub001/pkg/database"
)

// Dedicated job consumer. Runs alongside the server when RabbitMQ carries the
// job queue; without a broker the server handles jobs inline and this binary
// is unnecessary.
func main() {
	cfg := config.Load()

	if cfg.RabbitMQURL == "" {
		log.Fatal("❌ RABBITMQ_URL is required for the worker")
	}

	log.Println("🚀 Starting comurban worker...")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer db.Close()

	repos := repository.NewRepositories(db)

	var redisCache *cache.Cache
	if cfg.RedisURL != "" {
		if redisCache, err = cache.New(cfg.RedisURL); err != nil {
			log.Printf("⚠️  Redis unavailable: %v", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	// The worker publishes events to nobody; a hub still absorbs the
	// broadcasts so job code stays identical in both processes.
	hub := ws.NewHub()
	go hub.Run()

	wa := wacloud.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
	settingsSvc := settings.NewService(repos.Setting, redisCache, cfg.SettingsTTL)
	classifier := incident.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	detector := incident.NewDetector(repos.Incident, repos.Message, classifier)
	jobs := service.NewJobService(repos, hub, wa, settingsSvc, detector)

	consumer, err := queue.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("❌ RabbitMQ connection failed: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down...")
		cancel()
	}()

	log.Println("✅ Consuming jobs")
	if err := consumer.Run(ctx, jobs.Handle); err != nil && err != context.Canceled {
		log.Fatalf("❌ Consumer stopped: %v", err)
	}
	log.Println("👋 Bye")
}
