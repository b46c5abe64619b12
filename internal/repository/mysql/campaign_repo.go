package mysql

import (
	"context"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/util"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const campaignColumns = `id, title, description, target_amount, current_amount, end_date, creator_id,
	creator_name, status, rejection_reason, is_expired, average_rating, total_ratings, image_url,
	created_at, updated_at`

// CampaignRepository 基于 MySQL 的活动仓库
type CampaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository 创建活动仓库
func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create 创建活动
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	util.Logger.Info("开始创建活动", zap.Int("creator_id", c.CreatorID), zap.String("title", c.Title))

	query := `INSERT INTO campaigns (title, description, target_amount, current_amount, end_date,
		creator_id, creator_name, status, is_expired, average_rating, total_ratings, image_url,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		c.Title, c.Description, c.TargetAmount, c.CurrentAmount, c.EndDate,
		c.CreatorID, c.CreatorName, c.Status, c.IsExpired, c.AverageRating, c.TotalRatings,
		c.ImageURL, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		util.Logger.Error("插入活动失败", zap.Error(err))
		return fmt.Errorf("插入活动失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取活动ID失败: %w", err)
	}
	c.ID = int(id)

	util.Logger.Info("活动创建成功", zap.Int("campaign_id", c.ID))
	return nil
}

// FindByID 获取活动及评分列表
func (r *CampaignRepository) FindByID(ctx context.Context, id int) (*model.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	campaign, err := scanCampaign(row)
	if err != nil || campaign == nil {
		return campaign, err
	}

	ratings, err := r.listRatings(ctx, id)
	if err != nil {
		return nil, err
	}
	campaign.Ratings = ratings
	return campaign, nil
}

func (r *CampaignRepository) listRatings(ctx context.Context, campaignID int) ([]model.CampaignRating, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, rating, created_at FROM campaign_ratings WHERE campaign_id = ? ORDER BY id`,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("查询评分失败: %w", err)
	}
	defer rows.Close()

	var ratings []model.CampaignRating
	for rows.Next() {
		var rating model.CampaignRating
		if err := rows.Scan(&rating.UserID, &rating.Rating, &rating.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取评分失败: %w", err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// List 按条件查询活动
func (r *CampaignRepository) List(ctx context.Context, filter model.CampaignFilter) ([]*model.Campaign, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, "LOWER(title) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(search))+"%")
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY average_rating DESC, created_at DESC"

	return r.queryCampaigns(ctx, query, args...)
}

// ListByCreator 返回创建者的全部活动，最新的在前
func (r *CampaignRepository) ListByCreator(ctx context.Context, creatorID int) ([]*model.Campaign, error) {
	return r.queryCampaigns(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE creator_id = ? ORDER BY created_at DESC`,
		creatorID)
}

func (r *CampaignRepository) queryCampaigns(ctx context.Context, query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		util.Logger.Error("查询活动列表失败", zap.Error(err))
		return nil, fmt.Errorf("查询活动列表失败: %w", err)
	}
	defer rows.Close()

	campaigns := make([]*model.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// Update 更新创建者可修改的字段，仅当活动仍处于待审核或已通过状态
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET title = ?, description = ?, target_amount = ?, end_date = ?, image_url = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		c.Title, c.Description, c.TargetAmount, c.EndDate, c.ImageURL, c.UpdatedAt, c.ID,
		model.CampaignStatusPending, model.CampaignStatusApproved)
	if err != nil {
		util.Logger.Error("更新活动失败", zap.Error(err), zap.Int("campaign_id", c.ID))
		return false, fmt.Errorf("更新活动失败: %w", err)
	}
	return rowsChanged(result)
}

// Delete 删除待审核的活动，评分随外键级联删除
func (r *CampaignRepository) Delete(ctx context.Context, id int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = ? AND status = ?`, id, model.CampaignStatusPending)
	if err != nil {
		util.Logger.Error("删除活动失败", zap.Error(err), zap.Int("campaign_id", id))
		return false, fmt.Errorf("删除活动失败: %w", err)
	}
	ok, err := rowsChanged(result)
	if ok {
		util.Logger.Info("活动已删除", zap.Int("campaign_id", id))
	}
	return ok, err
}

// TransitionStatus 条件更新活动状态
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int, from, to, rejectionReason string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, nullString(rejectionReason), time.Now().UTC(), id, from)
	if err != nil {
		util.Logger.Error("更新活动状态失败", zap.Error(err), zap.Int("campaign_id", id))
		return false, fmt.Errorf("更新活动状态失败: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("获取影响行数失败: %w", err)
	}

	util.Logger.Info("活动状态更新",
		zap.Int("campaign_id", id),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int64("affected", affected))
	return affected == 1, nil
}

// MarkExpired 标记活动过期，已标记时不做任何修改
func (r *CampaignRepository) MarkExpired(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET is_expired = 1 WHERE id = ? AND is_expired = 0`, id); err != nil {
		return fmt.Errorf("标记活动过期失败: %w", err)
	}
	return nil
}

// UpsertRating 锁定活动行后写入评分并重新计算平均分
func (r *CampaignRepository) UpsertRating(ctx context.Context, campaignID, userID, rating int, at time.Time) (float64, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		util.Logger.Error("开始事务失败", zap.Error(err))
		return 0, 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var locked int
	err = tx.QueryRowContext(ctx, `SELECT id FROM campaigns WHERE id = ? FOR UPDATE`, campaignID).Scan(&locked)
	if err != nil {
		return 0, 0, fmt.Errorf("锁定活动失败: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO campaign_ratings (campaign_id, user_id, rating, created_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE rating = VALUES(rating), created_at = VALUES(created_at)`,
		campaignID, userID, rating, at); err != nil {
		return 0, 0, fmt.Errorf("写入评分失败: %w", err)
	}

	var sum, count int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM campaign_ratings WHERE campaign_id = ?`,
		campaignID).Scan(&sum, &count); err != nil {
		return 0, 0, fmt.Errorf("统计评分失败: %w", err)
	}

	var average float64
	if count > 0 {
		average = float64(sum) / float64(count)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE campaigns SET average_rating = ?, total_ratings = ? WHERE id = ?`,
		average, count, campaignID); err != nil {
		return 0, 0, fmt.Errorf("更新平均评分失败: %w", err)
	}

	if err = tx.Commit(); err != nil {
		util.Logger.Error("提交事务失败", zap.Error(err))
		return 0, 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return average, count, nil
}

func scanCampaign(s scanner) (*model.Campaign, error) {
	var (
		c        model.Campaign
		reason   sql.NullString
		imageURL sql.NullString
	)
	err := s.Scan(&c.ID, &c.Title, &c.Description, &c.TargetAmount, &c.CurrentAmount, &c.EndDate,
		&c.CreatorID, &c.CreatorName, &c.Status, &reason, &c.IsExpired, &c.AverageRating,
		&c.TotalRatings, &imageURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取活动失败: %w", err)
	}
	c.RejectionReason = reason.String
	c.ImageURL = imageURL.String
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
