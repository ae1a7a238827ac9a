package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crmhawkins/comurban-sub001/internal/api"
	"github.com/crmhawkins/comurban-sub001/internal/incident"
	"github.com/crmhawkins/comurban-sub001/internal/queue"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/service"
	"github.com/crmhawkins/comurban-sub001/internal/settings"
	"github.com/crmhawkins/comurban-sub001/internal/storage"
	"github.com/crmhawkins/comurban-sub001/internal/wacloud"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
	"github.com/crmhawkins/comurban-sub001/pkg/cache"
	"github.com/crmhawkins/comurban-sub001/pkg/config"
	"github.com/crmhawkins/comurban-sub001/pkg/database"
)

func main() {
	cfg := config.Load()

	log.Println("🚀 Starting comurban server...")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer db.Close()
	log.Println("✅ Database connected")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Migrations failed: %v", err)
	}
	log.Println("✅ Migrations applied")

	if err := database.SeedAdmin(db, cfg); err != nil {
		log.Fatalf("❌ Admin seed failed: %v", err)
	}

	repos := repository.NewRepositories(db)

	var redisCache *cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err = cache.New(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, settings cache disabled: %v", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Println("✅ Redis connected")
		}
	}

	var media *storage.MediaStore
	if cfg.MinioEndpoint != "" {
		media, err = storage.NewMediaStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("⚠️  MinIO unavailable, media archiving disabled: %v", err)
			media = nil
		} else {
			log.Println("✅ MinIO connected")
		}
	}

	hub := ws.NewHub()
	go hub.Run()

	wa := wacloud.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
	settingsSvc := settings.NewService(repos.Setting, redisCache, cfg.SettingsTTL)
	classifier := incident.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	detector := incident.NewDetector(repos.Incident, repos.Message, classifier)

	services := service.NewServices(cfg, repos, hub, wa, media, settingsSvc, detector)

	var enqueuer queue.Enqueuer
	if cfg.RabbitMQURL != "" {
		enqueuer, err = queue.NewRabbitEnqueuer(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("❌ RabbitMQ connection failed: %v", err)
		}
		log.Println("✅ RabbitMQ connected, jobs go through the broker")
	} else {
		enqueuer = queue.NewInlineEnqueuer(services.Jobs.Handle)
		log.Println("✅ No broker configured, jobs run inline")
	}
	defer enqueuer.Close()
	services.SetEnqueuer(enqueuer)

	// Periodic safety net over recently active conversations
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("*/15 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		services.Jobs.SweepRecentConversations(ctx, 30*time.Minute)
	}); err != nil {
		log.Fatalf("❌ Scheduling incident sweep failed: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(cfg, services, hub)

	go func() {
		log.Printf("🌐 Listening on :%s", cfg.Port)
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("❌ Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	if err := server.Shutdown(); err != nil {
		log.Printf("⚠️  Shutdown error: %v", err)
	}
	log.Println("👋 Bye")
}
