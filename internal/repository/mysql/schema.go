package mysql

import (
	"context"
	"crowdfunding-platform/internal/util"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'donor',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uk_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS campaigns (
		id INT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		target_amount DOUBLE NOT NULL,
		current_amount DOUBLE NOT NULL DEFAULT 0,
		end_date DATETIME NOT NULL,
		creator_id INT NOT NULL,
		creator_name VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		rejection_reason TEXT NULL,
		is_expired TINYINT(1) NOT NULL DEFAULT 0,
		average_rating DOUBLE NOT NULL DEFAULT 0,
		total_ratings INT NOT NULL DEFAULT 0,
		image_url VARCHAR(512) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_campaigns_creator (creator_id),
		KEY idx_campaigns_status (status),
		CONSTRAINT fk_campaigns_creator FOREIGN KEY (creator_id) REFERENCES users (id),
		CONSTRAINT chk_campaigns_amount CHECK (current_amount >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS campaign_ratings (
		id INT AUTO_INCREMENT PRIMARY KEY,
		campaign_id INT NOT NULL,
		user_id INT NOT NULL,
		rating TINYINT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uk_ratings_campaign_user (campaign_id, user_id),
		CONSTRAINT fk_ratings_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE,
		CONSTRAINT chk_ratings_range CHECK (rating BETWEEN 1 AND 5)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS donations (
		id INT AUTO_INCREMENT PRIMARY KEY,
		donor_id INT NOT NULL,
		donor_email VARCHAR(255) NOT NULL,
		campaign_id INT NOT NULL,
		amount DOUBLE NOT NULL,
		payment_method VARCHAR(20) NOT NULL DEFAULT 'upi',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'completed',
		transaction_id VARCHAR(64) NOT NULL,
		refund_status VARCHAR(20) NOT NULL DEFAULT 'none',
		refund_reason TEXT NULL,
		refund_requested_at DATETIME NULL,
		refunded_at DATETIME NULL,
		is_suspicious TINYINT(1) NOT NULL DEFAULT 0,
		suspicious_reason VARCHAR(255) NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uk_donations_txn (transaction_id),
		KEY idx_donations_donor_created (donor_id, created_at),
		KEY idx_donations_campaign (campaign_id),
		KEY idx_donations_refund (refund_status),
		CONSTRAINT chk_donations_amount CHECK (amount > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate 创建数据表，已存在的表不做修改
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			util.Logger.Error("执行建表语句失败", zap.Int("index", i), zap.Error(err))
			return fmt.Errorf("执行建表语句失败: %w", err)
		}
	}
	util.Logger.Info("数据表已就绪", zap.Int("tables", len(schema)))
	return nil
}
