package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/health"
	"dropmail/backend/internal/logger"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/pool"
	"dropmail/backend/internal/push"
	"dropmail/backend/internal/reaper"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/smtp"
	"dropmail/backend/internal/storage"
	"dropmail/backend/internal/storage/memory"
	"dropmail/backend/internal/storage/object"
	redisstore "dropmail/backend/internal/storage/redis"
	sqlstore "dropmail/backend/internal/storage/sql"
	httptransport "dropmail/backend/internal/transport/http"
)

// main 启动同时包含 SMTP 收件与 HTTP API 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	var log *zap.Logger
	if cfg.Log.Development {
		log = logger.NewDevelopmentLogger()
	} else {
		log = logger.NewProductionLogger(cfg.Log.Level, cfg.Log.File)
	}
	log.Info("starting dropmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Strings("domains", cfg.Mailbox.AllowedDomains),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化对象存储（附件内容）
	var blobs *object.Store
	if cfg.ObjectStore.Endpoint != "" {
		blobs, err = object.NewStore(object.Config{
			Endpoint:       cfg.ObjectStore.Endpoint,
			Region:         cfg.ObjectStore.Region,
			Bucket:         cfg.ObjectStore.Bucket,
			AccessKey:      cfg.ObjectStore.AccessKey,
			SecretKey:      cfg.ObjectStore.SecretKey,
			ForcePathStyle: cfg.ObjectStore.ForcePathStyle,
		})
		if err != nil {
			panic(fmt.Sprintf("failed to initialize object storage: %v", err))
		}
		log.Info("object storage initialized",
			zap.String("endpoint", cfg.ObjectStore.Endpoint),
			zap.String("bucket", cfg.ObjectStore.Bucket))
	} else {
		log.Warn("object storage not configured, attachment contents will not be stored")
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	// 初始化服务层
	lifetimes := map[domain.OwnerClass]time.Duration{
		domain.OwnerClassAnonymous: cfg.Mailbox.AnonymousTTL,
		domain.OwnerClassOwned:     cfg.Mailbox.OwnedTTL,
	}
	mailboxService := service.NewMailboxService(store, cfg.Mailbox.AllowedDomains, lifetimes, log)
	mailboxService.SetMetrics(metrics)

	// 可选的 Redis 地址缓存
	var addressCache *redisstore.Cache
	if cfg.Redis.Enabled {
		cache, err := redisstore.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect to redis, continuing without cache", zap.Error(err))
		} else {
			addressCache = cache
			mailboxService.SetCache(cache)
			healthChecker.AddCheck("redis", cache)
			defer cache.Close()
			log.Info("redis mailbox cache enabled", zap.String("address", cfg.Redis.Address))
		}
	}

	var blobStore service.BlobStore
	var blobDeleter reaper.BlobDeleter
	if blobs != nil {
		blobStore = blobs
		blobDeleter = blobs
	}

	emailService := service.NewEmailService(store, store, blobStore, log)
	offloader := service.NewOffloader(store, blobStore, object.GenerateKey, log)

	// 推送扇出：工作池有界，队列满时丢弃扇出而不是阻塞收件
	workerPool := pool.NewWorkerPool(8, 256, log)
	notifier := push.NewNotifier(store, store, push.NewTelegramSender(), metrics, log)

	ingestService := service.NewIngestService(
		mailboxService, store, offloader, notifier, workerPool, metrics, log)

	// 过期回收器
	mailboxReaper := reaper.NewReaper(store, blobDeleter, reaper.Config{
		Enabled:   cfg.Reaper.Enabled,
		Interval:  cfg.Reaper.Interval,
		BatchSize: cfg.Reaper.BatchSize,
		PassLimit: cfg.Reaper.PassLimit,
		Pause:     cfg.Reaper.Pause,
	}, metrics, log)
	ingestService.SetReaperKick(mailboxReaper.Nudge)
	if addressCache != nil {
		// 回收删除邮箱后同步失效地址缓存，避免 TTL 内新来信命中已删除的行
		mailboxReaper.SetCache(addressCache)
	}

	// 从配置播种全局推送通道
	seedGlobalPushConfig(store, cfg, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		EmailService:   emailService,
		Store:          store,
		HealthHandler:  healthChecker.Handler(),
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器
	limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.MaxConnections)
	smtpBackend := smtp.NewBackend(ingestService, limiter, cfg.SMTP.MaxMessageSize, log)
	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second
	smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageSize
	smtpServer.MaxRecipients = 50

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 工作池
	workerPool.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 过期回收器 goroutine
	group.Go(func() error {
		log.Info("starting mailbox reaper",
			zap.Bool("enabled", cfg.Reaper.Enabled),
			zap.Duration("interval", cfg.Reaper.Interval),
			zap.Int("batch_size", cfg.Reaper.BatchSize),
		)
		mailboxReaper.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// seedGlobalPushConfig 从配置播种全局推送通道
//
// 只在存储里还没有全局配置时写入，避免覆盖后台的改动。
func seedGlobalPushConfig(store storage.Store, cfg *config.Config, log *zap.Logger) {
	if cfg.Push.GlobalBotToken == "" || cfg.Push.GlobalChatID == "" {
		return
	}

	if _, err := store.GetGlobalPushConfig(); err == nil {
		log.Debug("global push config already present, skipping seed")
		return
	}

	err := store.SaveGlobalPushConfig(&domain.GlobalPushConfig{
		BotToken: cfg.Push.GlobalBotToken,
		ChatID:   cfg.Push.GlobalChatID,
		Enabled:  true,
	})
	if err != nil {
		log.Error("failed to seed global push config", zap.Error(err))
		return
	}

	log.Info("global push channel configured from environment")
}
