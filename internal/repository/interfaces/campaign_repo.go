package interfaces

import (
	"context"
	"crowdfunding-platform/internal/model"
	"time"
)

// CampaignRepository 活动仓库
type CampaignRepository interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	// FindByID 返回活动及其评分列表
	FindByID(ctx context.Context, id int) (*model.Campaign, error)
	// List 按平均评分降序、创建时间降序返回
	List(ctx context.Context, filter model.CampaignFilter) ([]*model.Campaign, error)
	ListByCreator(ctx context.Context, creatorID int) ([]*model.Campaign, error)
	// Update 只更新创建者可修改的字段，活动已不是待审核或已通过时返回 false
	Update(ctx context.Context, campaign *model.Campaign) (bool, error)
	// Delete 仅删除待审核的活动，返回是否删除
	Delete(ctx context.Context, id int) (bool, error)
	// TransitionStatus 仅当当前状态为 from 时更新，返回是否更新成功
	TransitionStatus(ctx context.Context, id int, from, to, rejectionReason string) (bool, error)
	MarkExpired(ctx context.Context, id int) error
	// UpsertRating 写入或覆盖用户评分并重新计算平均分，返回新的平均分和评分数
	UpsertRating(ctx context.Context, campaignID, userID, rating int, at time.Time) (float64, int, error)
}
