package main

import (
	"crowdfunding-platform/config"
	"crowdfunding-platform/internal/repository/mysql"
	"crowdfunding-platform/internal/service"
	"crowdfunding-platform/internal/session"
	"crowdfunding-platform/internal/util"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and seed the admin account",
		Long: `Create all tables if they do not exist.

When ADMIN_EMAIL and ADMIN_PASSWORD are set, an admin account with those
credentials is created unless it already exists. Admin accounts cannot be
created through the public register endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.AppConfig

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := mysql.Migrate(ctx, db); err != nil {
				return fmt.Errorf("建表失败: %w", err)
			}
			util.Logger.Info("数据库表已就绪")

			if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
				util.Logger.Warn("未设置 ADMIN_EMAIL/ADMIN_PASSWORD，跳过管理员初始化")
				return nil
			}
			userService := service.NewUserService(mysql.NewUserRepository(db), session.NewMemoryBlacklist())
			admin, err := userService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
			if err != nil {
				return fmt.Errorf("初始化管理员失败: %w", err)
			}
			util.Logger.Info("管理员账号已就绪", zap.Int("user_id", admin.ID), zap.String("email", admin.Email))
			return nil
		},
	}
}
