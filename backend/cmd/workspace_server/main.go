package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"workspaceServer/backend/internal/authservice"
	"workspaceServer/backend/internal/cache"
	"workspaceServer/backend/internal/events"
	"workspaceServer/backend/internal/httpapi/handlers"
	"workspaceServer/backend/internal/httpapi/middleware"
	"workspaceServer/backend/internal/objstore"
	"workspaceServer/backend/internal/store"
	"workspaceServer/backend/internal/ws"
)

type WorkspaceConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Minio struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"accessKey"`
		SecretKey string `mapstructure:"secretKey"`
		UseSSL    bool   `mapstructure:"useSSL"`
	} `mapstructure:"Minio"`
	Cors struct {
		Origins []string `mapstructure:"origins"`
	} `mapstructure:"Cors"`
}

func initConfig() (*WorkspaceConfig, error) {
	cfg := &WorkspaceConfig{}
	v := viper.New()
	v.SetConfigName("workspaceConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	// UniversalClient：单机给一个地址，集群给多个
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	objects, err := objstore.NewObjectStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	if err != nil {
		log.Fatalf("Failed to connect to object storage: %v", err)
	}
	if err := objects.EnsureBuckets(context.Background()); err != nil {
		log.Fatalf("Failed to ensure buckets: %v", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	entryStore := store.NewEntryStore(db)
	userStore := store.NewUserStore(gormDB)
	subStore := store.NewSubscriptionStore(gormDB)

	presenceCache := cache.NewRedisPresence(rdb)
	subCache := cache.NewSubscriptionStatusCache(rdb, subStore.GetStatus)

	// Kafka 本地队列 + worker 重试发送
	sem := events.NewSemaphoreControl()
	dispatcher := events.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		sem,
		events.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	hub := ws.NewHub()
	manager := ws.NewManager(hub, presenceCache, dispatcher)

	authHandler := authservice.NewHandler(userStore)
	entryHandler := handlers.NewHandler(entryStore, userStore, objects, presenceCache, subCache)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	corsCfg := cors.DefaultConfig()
	if len(cfg.Cors.Origins) > 0 {
		corsCfg.AllowOrigins = cfg.Cors.Origins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	v1 := r.Group("/v1")
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// 鉴权中间件从 Authorization 或 ?token= 提取 token，写入 userId/email
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware())
	authed.GET("/auth/verify", authHandler.Verify)
	authed.POST("/profile/avatar", entryHandler.UploadAvatar)
	authed.GET("/subscription", entryHandler.SubscriptionStatus)

	authed.GET("/workspaces", entryHandler.ListWorkspaces)
	entries := authed.Group("/entries/:kind")
	entries.POST("", entryHandler.CreateEntry)
	entries.GET("/:id", entryHandler.GetEntry)
	entries.GET("/:id/children", entryHandler.ListChildren)
	entries.PUT("/:id/title", entryHandler.UpdateTitle)
	entries.PUT("/:id/icon", entryHandler.UpdateIcon)
	entries.PUT("/:id/trash", entryHandler.MoveToTrash)
	entries.PUT("/:id/restore", entryHandler.Restore)
	entries.DELETE("/:id", entryHandler.DeleteEntry)
	entries.GET("/:id/snapshot", entryHandler.GetSnapshot)
	entries.PUT("/:id/snapshot", entryHandler.UpdateSnapshot)
	entries.POST("/:id/banner", entryHandler.UploadBanner)
	entries.DELETE("/:id/banner", entryHandler.RemoveBanner)

	collab := authed.Group("/collab")
	collab.GET("/ws", manager.WebSocketConnect)
	collab.GET("/active", entryHandler.ActiveRooms)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
