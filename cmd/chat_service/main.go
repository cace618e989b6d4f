package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/internal/chat/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()
	logger.Log.SetDebugMode(!config.IsProduction())

	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.Engine = cfg.Engine.WithDefaults()
	token.SetSecret(cfg.JWT.Secret)

	// 1. 建立 Mongo 連線
	ctx := context.Background()
	uri := mongoURI(cfg.MongoSQL)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("host", cfg.MongoSQL.Host),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	if err := repository.EnsureIndexes(ctx, mongo.Database); err != nil {
		logger.Log.Fatal("create mongo indexes", zap.Error(err))
	}

	// 2. 建立 Redis 連線 (Pub/Sub)
	redisClient, err := newRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	// 3. 初始化 Repository
	convRepo := repository.NewMongoConversationRepository(mongo.Database, cfg.Engine.StreamBuffer)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database, cfg.Engine.StreamBuffer)
	dirRepo := repository.NewMongoDirectoryRepository(mongo.Database)
	pub := repository.NewRedisPubSub(redisClient)

	// 4. 初始化 engine
	manager := app.NewChatLifecycleManager(convRepo, msgRepo, dirRepo,
		app.WithEngineConfig(cfg.Engine),
		app.WithNotifier(pub),
	)

	// 5. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, app.NewChatWebsocketHandler(manager, pub))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("shutdown", zap.Error(err))
		}
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Error("fiber listen", zap.Error(err))
	}

	// 等待背景的 pointer 更新與通知完成
	manager.Wait()
}

func mongoURI(c config.DatabaseConfig) string {
	if c.User == "" {
		return fmt.Sprintf("mongodb://%s:%d", c.Host, c.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", c.User, c.Password, c.Host, c.Port)
}

// newRedis sentinel from .env when configured, otherwise the standalone address in yaml
func newRedis(c config.RedisConfig) (*redis.Client, error) {
	masterName, sentinel := config.GetRedisSetting()
	if masterName != "" && len(sentinel) > 0 {
		return database.NewRedisClient(masterName, sentinel, c.RedisDB)
	}
	return database.NewRedisStandaloneClient(c.Addr, c.RedisDB)
}
