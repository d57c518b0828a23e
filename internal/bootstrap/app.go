package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"chatvault/internal/batch"
	"chatvault/internal/cache"
	"chatvault/internal/config"
	"chatvault/internal/model"
	"chatvault/internal/platform/objectstore"
	postgresClient "chatvault/internal/platform/postgres"
	rabbitmqClient "chatvault/internal/platform/rabbitmq"
	redisClient "chatvault/internal/platform/redis"
	"chatvault/internal/ratelimit"
	"chatvault/internal/syncer"
	"chatvault/internal/worker"
)

// chatStoragePrefix mirrors the upload key layout; the cleanup worker
// deletes this prefix in every bucket when a chat goes away.
func chatStoragePrefix(chatID string) string {
	return "chats/" + chatID + "/"
}

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	TagCache       *cache.TagCache
	Hub            *syncer.Hub
	SyncProvider   *syncer.Provider
	CleanupBatcher *batch.Batcher[string]
	CleanupWorker  *worker.StorageCleanupWorker
	RequestLimiter *ratelimit.FixedWindowLimiter

	Attachments objectstore.Store
	Previews    objectstore.Store
	Exports     objectstore.Store

	StartedAt  time.Time
	syncCancel context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	db, err := postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}, &model.UsageCounter{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	minioCli, err := objectstore.NewClient(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.UseSSL)
	if err != nil {
		return nil, err
	}
	attachments, err := objectstore.NewMinioStore(minioCli, cfg.Storage.AttachmentsBucket)
	if err != nil {
		return nil, err
	}
	previews, err := objectstore.NewMinioStore(minioCli, cfg.Storage.PreviewsBucket)
	if err != nil {
		return nil, err
	}
	exports, err := objectstore.NewMinioStore(minioCli, cfg.Storage.ExportsBucket)
	if err != nil {
		return nil, err
	}

	hub := syncer.NewHub()
	hub.Start()

	provider := syncer.NewProvider(redisCli, cfg.Redis.SyncChannel, uuid.NewString(), hub)
	syncCtx, syncCancel := context.WithCancel(context.Background())
	go provider.Run(syncCtx)

	publisher := rabbitmqClient.NewCleanupPublisher(mqConn, cfg.RabbitMQ.StorageCleanupQueue)
	cleanupBatcher := batch.New(2*time.Second, func(chatIDs []string) {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		job := rabbitmqClient.CleanupJob{ChatIDs: chatIDs, EnqueuedAt: time.Now()}
		if err := publisher.Publish(pubCtx, job); err != nil {
			log.Printf("publish cleanup job failed: %v", err)
		}
	})

	cleanupWorker := worker.NewStorageCleanupWorker(
		mqConn,
		[]objectstore.Store{attachments, previews, exports},
		cfg.RabbitMQ.StorageCleanupQueue,
		chatStoragePrefix,
	)
	if err := cleanupWorker.Start(ctx); err != nil {
		syncCancel()
		return nil, fmt.Errorf("start cleanup worker failed: %w", err)
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(redisCli, cfg.App.Name+":ratelimit", cfg.Limits.RequestsPerMinute, time.Minute)
	if err != nil {
		syncCancel()
		return nil, err
	}

	return &App{
		Config:         cfg,
		DB:             db,
		Redis:          redisCli,
		MQConn:         mqConn,
		TagCache:       cache.NewTagCache(redisCli, time.Duration(cfg.Redis.CacheTTLSeconds)*time.Second),
		Hub:            hub,
		SyncProvider:   provider,
		CleanupBatcher: cleanupBatcher,
		CleanupWorker:  cleanupWorker,
		RequestLimiter: limiter,
		Attachments:    attachments,
		Previews:       previews,
		Exports:        exports,
		StartedAt:      time.Now(),
		syncCancel:     syncCancel,
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.syncCancel != nil {
		a.syncCancel()
	}
	if a.CleanupBatcher != nil {
		// Push out anything still pending before the connection drops.
		a.CleanupBatcher.Flush()
		a.CleanupBatcher.Close()
	}
	if a.CleanupWorker != nil {
		a.CleanupWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
