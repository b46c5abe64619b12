package interfaces

import (
	"context"
	"crowdfunding-platform/internal/model"
	"time"
)

// DonationRepository 捐款仓库
type DonationRepository interface {
	// CreateWithLedger 在同一事务中写入捐款，未被标记时累加活动金额
	CreateWithLedger(ctx context.Context, donation *model.Donation) error
	FindByID(ctx context.Context, id int) (*model.Donation, error)
	ListRecentByDonor(ctx context.Context, donorID int, since time.Time) ([]*model.Donation, error)
	// ListByDonor 附带活动摘要，活动已删除的记录不返回
	ListByDonor(ctx context.Context, donorID int) ([]*model.Donation, error)
	ListPendingRefunds(ctx context.Context) ([]*model.Donation, error)
	ListSuspicious(ctx context.Context) ([]*model.Donation, error)
	HasDonated(ctx context.Context, donorID, campaignID int) (bool, error)
	CountByCampaigns(ctx context.Context, campaignIDs []int) (map[int]int, error)
	// MarkRefundRequested 仅当退款状态为 none 时更新
	MarkRefundRequested(ctx context.Context, id int, reason string, at time.Time) (bool, error)
	// CompleteRefund 在同一事务中完成退款，未被标记的捐款从活动金额中扣回（不低于 0）
	CompleteRefund(ctx context.Context, donation *model.Donation, at time.Time) (bool, error)
	RejectRefund(ctx context.Context, id int) (bool, error)
}
