package main

import (
	"context"
	"crowdfunding-platform/config"
	"crowdfunding-platform/internal/api"
	"crowdfunding-platform/internal/api/campaign"
	"crowdfunding-platform/internal/api/donation"
	"crowdfunding-platform/internal/api/user"
	"crowdfunding-platform/internal/events"
	"crowdfunding-platform/internal/lock"
	"crowdfunding-platform/internal/metrics"
	"crowdfunding-platform/internal/repository/mysql"
	"crowdfunding-platform/internal/service"
	"crowdfunding-platform/internal/session"
	"crowdfunding-platform/internal/storage"
	"crowdfunding-platform/internal/util"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.AppConfig)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	util.Logger.Info("应用程序启动")

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	uploader, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}

	locker, blacklist, closeRedis, err := newCoordination(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.SMTPEnabled() {
		notifier = service.NewEmailService(cfg)
	}

	metrics.Init()

	// 初始化存储库、服务和处理器
	userRepo := mysql.NewUserRepository(db)
	campaignRepo := mysql.NewCampaignRepository(db)
	donationRepo := mysql.NewDonationRepository(db)

	userService := service.NewUserService(userRepo, blacklist)
	campaignService := service.NewCampaignService(campaignRepo, userRepo, notifier, publisher)
	donationService := service.NewDonationService(donationRepo, campaignRepo, userRepo, locker, notifier, publisher)
	ratingService := service.NewRatingService(campaignRepo, donationRepo)
	analyticsService := service.NewAnalyticsService(campaignRepo, donationRepo)

	r := api.NewRouter(cfg, api.Handlers{
		Auth:     user.NewAuthHandler(userService),
		Campaign: campaign.NewCampaignHandler(campaignService, ratingService, analyticsService, uploader),
		Donation: donation.NewDonationHandler(donationService),
	}, blacklist, db)

	if cfg.Debug {
		for _, route := range r.Routes() {
			util.Logger.Debug("路由", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Logger.Info("服务器正在启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-quit:
	}
	util.Logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	util.Logger.Info("服务器已优雅关闭")
	return nil
}

// newCoordination 配置了 Redis 时捐款锁和令牌黑名单由多实例共享，否则使用进程内实现
func newCoordination(ctx context.Context, cfg config.Config) (lock.Locker, session.Blacklist, func(), error) {
	if cfg.RedisAddr == "" {
		util.Logger.Info("未配置 Redis，使用进程内捐款锁和令牌黑名单")
		return lock.NewKeyedMutex(), session.NewMemoryBlacklist(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	util.Logger.Info("Redis 连接成功", zap.String("addr", cfg.RedisAddr))
	return lock.NewRedisLocker(client), session.NewRedisBlacklist(client), func() { client.Close() }, nil
}

// newPublisher 配置了 Kafka 时发布领域事件，否则丢弃
func newPublisher(cfg config.Config) (events.Publisher, error) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		return events.NopPublisher{}, nil
	}
	producer, err := events.NewKafkaProducer(brokers)
	if err != nil {
		return nil, err
	}
	util.Logger.Info("Kafka 生产者已创建", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	return events.NewKafkaPublisher(producer, cfg.KafkaTopic), nil
}
