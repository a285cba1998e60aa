package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	chatapp "presence_chat_service/internal/chat/app"
	chatrepo "presence_chat_service/internal/chat/repository"
	notifyapp "presence_chat_service/internal/notify/app"
	"presence_chat_service/internal/presence/app"
	presencerepo "presence_chat_service/internal/presence/repository"
	"presence_chat_service/internal/presence/router"
	"presence_chat_service/pkg/config"
	"presence_chat_service/pkg/database"
	"presence_chat_service/pkg/logger"
	testtool "presence_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.PresenceService, config.EnvConfig.PresenceServiceLogPath)
	cfg := config.LoadConfig[config.Presence](config.EnvConfig.PresenceService, config.EnvConfig.PresenceServiceYAMLPath)
	cfg.ApplyDefaults()

	testtool.StartPprof()

	// Mongo keeps channel and message history across restarts
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: time.Duration(cfg.Mongo.RetryInterval),
		},
		cfg.Mongo.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// Redis carries pub/sub fan-out and the cross-node presence mirror
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	channelRepo := chatrepo.NewMongoChannelRepository(mongo.Database)
	msgRepo := chatrepo.NewMongoMessageRepository(mongo.Database)
	pubsub := chatrepo.NewRedisPubSub(redisClient)
	mirror := presencerepo.NewRedisPresenceRepo(redisClient, cfg.PresenceTTL)

	channelUC := chatapp.NewChannelUseCase(channelRepo, pubsub)
	messageUC := chatapp.NewMessageUseCase(channelUC, msgRepo, pubsub)

	store := app.NewStore()
	dispatcher := notifyapp.NewDispatcher(pubsub, store.IsOnline, cfg.NotifyQueueCap)

	hub := app.NewHub(store, channelUC, messageUC, dispatcher, pubsub, mirror, app.HubConfig{
		LivenessTimeout: cfg.LivenessTimeout,
		HistoryPageSize: cfg.HistoryPageSize,
	})
	go hub.Run()
	defer hub.Stop()

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.PresenceServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, app.NewWebsocketHandler(hub, cfg.AuthGrace), mirror)

	port := ":" + cfg.Port
	log.Printf("Presence Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
