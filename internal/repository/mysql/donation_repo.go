package mysql

import (
	"context"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"crowdfunding-platform/internal/util"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const donationColumns = `d.id, d.donor_id, d.donor_email, d.campaign_id, d.amount, d.payment_method,
	d.payment_status, d.transaction_id, d.refund_status, d.refund_reason, d.refund_requested_at,
	d.refunded_at, d.is_suspicious, d.suspicious_reason, d.created_at`

const donationWithCampaignColumns = donationColumns + `,
	c.id, c.title, c.description, c.target_amount, c.current_amount, c.status, COALESCE(u.name, '')`

const donationWithCampaignFrom = ` FROM donations d
	JOIN campaigns c ON c.id = d.campaign_id
	LEFT JOIN users u ON u.id = d.donor_id`

// DonationRepository 基于 MySQL 的捐款仓库
type DonationRepository struct {
	db *sql.DB
}

// NewDonationRepository 创建捐款仓库
func NewDonationRepository(db *sql.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// CreateWithLedger 写入捐款记录，未被标记时在同一事务中累加活动金额
func (r *DonationRepository) CreateWithLedger(ctx context.Context, d *model.Donation) error {
	util.Logger.Info("开始创建捐款",
		zap.Int("donor_id", d.DonorID),
		zap.Int("campaign_id", d.CampaignID),
		zap.Float64("amount", d.Amount),
		zap.Bool("suspicious", d.IsSuspicious))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		util.Logger.Error("开始事务失败", zap.Error(err))
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO donations (donor_id, donor_email, campaign_id, amount, payment_method,
			payment_status, transaction_id, refund_status, is_suspicious, suspicious_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DonorID, d.DonorEmail, d.CampaignID, d.Amount, d.PaymentMethod,
		d.PaymentStatus, d.TransactionID, d.RefundStatus, d.IsSuspicious,
		nullString(d.SuspiciousReason), d.CreatedAt)
	if err != nil {
		util.Logger.Error("插入捐款失败", zap.Error(err))
		return fmt.Errorf("插入捐款失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取捐款ID失败: %w", err)
	}

	if !d.IsSuspicious {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaigns SET current_amount = current_amount + ?
			WHERE id = ? AND status = ? AND is_expired = 0 AND end_date >= ?`,
			d.Amount, d.CampaignID, model.CampaignStatusApproved, d.CreatedAt)
		if err != nil {
			util.Logger.Error("更新活动金额失败", zap.Error(err), zap.Int("campaign_id", d.CampaignID))
			return fmt.Errorf("更新活动金额失败: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("获取影响行数失败: %w", err)
		} else if affected == 0 {
			return interfaces.ErrStateChanged
		}
	}

	if err := tx.Commit(); err != nil {
		util.Logger.Error("提交事务失败", zap.Error(err))
		return fmt.Errorf("提交事务失败: %w", err)
	}

	d.ID = int(id)
	util.Logger.Info("捐款创建成功", zap.Int("donation_id", d.ID), zap.String("transaction_id", d.TransactionID))
	return nil
}

// FindByID 通过ID获取捐款
func (r *DonationRepository) FindByID(ctx context.Context, id int) (*model.Donation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+donationColumns+` FROM donations d WHERE d.id = ?`, id)
	return scanDonation(row)
}

// ListRecentByDonor 返回捐款人在 since 之后的全部捐款
func (r *DonationRepository) ListRecentByDonor(ctx context.Context, donorID int, since time.Time) ([]*model.Donation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+donationColumns+` FROM donations d
		WHERE d.donor_id = ? AND d.created_at >= ? ORDER BY d.created_at DESC`,
		donorID, since)
	if err != nil {
		return nil, fmt.Errorf("查询近期捐款失败: %w", err)
	}
	defer rows.Close()

	donations := make([]*model.Donation, 0)
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

// ListByDonor 返回捐款人的捐款及活动摘要
func (r *DonationRepository) ListByDonor(ctx context.Context, donorID int) ([]*model.Donation, error) {
	return r.queryWithCampaign(ctx, `WHERE d.donor_id = ?`, donorID)
}

// ListPendingRefunds 返回等待处理的退款申请
func (r *DonationRepository) ListPendingRefunds(ctx context.Context) ([]*model.Donation, error) {
	return r.queryWithCampaign(ctx, `WHERE d.refund_status = ?`, model.RefundStatusRequested)
}

// ListSuspicious 返回被标记的捐款
func (r *DonationRepository) ListSuspicious(ctx context.Context) ([]*model.Donation, error) {
	return r.queryWithCampaign(ctx, `WHERE d.is_suspicious = 1`)
}

func (r *DonationRepository) queryWithCampaign(ctx context.Context, where string, args ...interface{}) ([]*model.Donation, error) {
	query := `SELECT ` + donationWithCampaignColumns + donationWithCampaignFrom + ` ` + where +
		` ORDER BY d.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		util.Logger.Error("查询捐款列表失败", zap.Error(err))
		return nil, fmt.Errorf("查询捐款列表失败: %w", err)
	}
	defer rows.Close()

	donations := make([]*model.Donation, 0)
	for rows.Next() {
		d, err := scanDonationWithCampaign(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

// HasDonated 判断用户是否向活动捐过款
func (r *DonationRepository) HasDonated(ctx context.Context, donorID, campaignID int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM donations WHERE donor_id = ? AND campaign_id = ?)`,
		donorID, campaignID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("查询捐款记录失败: %w", err)
	}
	return exists, nil
}

// CountByCampaigns 统计每个活动的捐款笔数
func (r *DonationRepository) CountByCampaigns(ctx context.Context, campaignIDs []int) (map[int]int, error) {
	counts := make(map[int]int, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return counts, nil
	}

	args := make([]interface{}, len(campaignIDs))
	for i, id := range campaignIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT campaign_id, COUNT(*) FROM donations WHERE campaign_id IN (`+placeholders(len(args))+`)
		GROUP BY campaign_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("统计捐款笔数失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("读取捐款笔数失败: %w", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// MarkRefundRequested 记录退款申请
func (r *DonationRepository) MarkRefundRequested(ctx context.Context, id int, reason string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE donations SET refund_status = ?, refund_reason = ?, refund_requested_at = ?
		WHERE id = ? AND refund_status = ?`,
		model.RefundStatusRequested, reason, at, id, model.RefundStatusNone)
	if err != nil {
		util.Logger.Error("记录退款申请失败", zap.Error(err), zap.Int("donation_id", id))
		return false, fmt.Errorf("记录退款申请失败: %w", err)
	}
	return rowsChanged(result)
}

// CompleteRefund 完成退款，未被标记的捐款从活动金额中扣回
func (r *DonationRepository) CompleteRefund(ctx context.Context, d *model.Donation, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		util.Logger.Error("开始事务失败", zap.Error(err))
		return false, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE donations SET refund_status = ?, payment_status = ?, refunded_at = ?
		WHERE id = ? AND refund_status = ?`,
		model.RefundStatusCompleted, model.PaymentStatusRefunded, at, d.ID, model.RefundStatusRequested)
	if err != nil {
		return false, fmt.Errorf("更新退款状态失败: %w", err)
	}
	if ok, err := rowsChanged(result); err != nil || !ok {
		return false, err
	}

	if !d.IsSuspicious {
		if _, err := tx.ExecContext(ctx, `
			UPDATE campaigns SET current_amount = GREATEST(current_amount - ?, 0) WHERE id = ?`,
			d.Amount, d.CampaignID); err != nil {
			util.Logger.Error("扣回活动金额失败", zap.Error(err), zap.Int("campaign_id", d.CampaignID))
			return false, fmt.Errorf("扣回活动金额失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		util.Logger.Error("提交事务失败", zap.Error(err))
		return false, fmt.Errorf("提交事务失败: %w", err)
	}

	util.Logger.Info("退款完成", zap.Int("donation_id", d.ID), zap.Float64("amount", d.Amount))
	return true, nil
}

// RejectRefund 驳回退款申请
func (r *DonationRepository) RejectRefund(ctx context.Context, id int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE donations SET refund_status = ? WHERE id = ? AND refund_status = ?`,
		model.RefundStatusRejected, id, model.RefundStatusRequested)
	if err != nil {
		return false, fmt.Errorf("驳回退款失败: %w", err)
	}
	return rowsChanged(result)
}

func rowsChanged(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("获取影响行数失败: %w", err)
	}
	return affected == 1, nil
}

func scanDonation(s scanner) (*model.Donation, error) {
	var (
		d     model.Donation
		nulls donationNulls
	)
	if err := s.Scan(donationFields(&d, &nulls)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取捐款失败: %w", err)
	}
	nulls.apply(&d)
	return &d, nil
}

func scanDonationWithCampaign(s scanner) (*model.Donation, error) {
	var (
		d     model.Donation
		nulls donationNulls
		c     model.CampaignSummary
	)
	dest := append(donationFields(&d, &nulls),
		&c.ID, &c.Title, &c.Description, &c.TargetAmount, &c.CurrentAmount, &c.Status, &d.DonorName)
	if err := s.Scan(dest...); err != nil {
		return nil, fmt.Errorf("读取捐款失败: %w", err)
	}
	nulls.apply(&d)
	d.Campaign = &c
	return &d, nil
}

// donationNulls 可为空的列先扫描到这里，再写回模型
type donationNulls struct {
	refundReason      sql.NullString
	refundRequestedAt sql.NullTime
	refundedAt        sql.NullTime
	suspiciousReason  sql.NullString
}

func (n *donationNulls) apply(d *model.Donation) {
	d.RefundReason = n.refundReason.String
	d.RefundRequestedAt = nullTimePtr(n.refundRequestedAt)
	d.RefundedAt = nullTimePtr(n.refundedAt)
	d.SuspiciousReason = n.suspiciousReason.String
}

func donationFields(d *model.Donation, n *donationNulls) []interface{} {
	return []interface{}{
		&d.ID, &d.DonorID, &d.DonorEmail, &d.CampaignID, &d.Amount, &d.PaymentMethod,
		&d.PaymentStatus, &d.TransactionID, &d.RefundStatus, &n.refundReason, &n.refundRequestedAt,
		&n.refundedAt, &d.IsSuspicious, &n.suspiciousReason, &d.CreatedAt,
	}
}
