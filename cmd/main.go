package main

import (
	"context"
	"crowdfunding-platform/config"
	"crowdfunding-platform/internal/common"
	"crowdfunding-platform/internal/util"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crowdfunding",
		Short: "Crowdfunding platform API server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 初始化配置和日志
			config.Init()
			util.InitLogger(config.AppConfig.LogLevel)
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	err := rootCmd.Execute()
	_ = util.Logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB 连接数据库，启动阶段数据库可能尚未就绪，失败时重试
func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	err = common.WithRetry(ctx, 5, time.Second, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	maxConns := cfg.DBMaxOpenConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	util.Logger.Info("数据库连接成功", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return db, nil
}
