package events

import (
	"context"
	"crowdfunding-platform/internal/util"
	"time"

	"go.uber.org/zap"
)

// 事件类型
const (
	DonationCreated  = "donation.created"
	DonationFlagged  = "donation.flagged"
	RefundRequested  = "refund.requested"
	RefundProcessed  = "refund.processed"
	CampaignReviewed = "campaign.reviewed"
)

// Event 领域事件，按 Key 分区以保证同一活动的事件有序
type Event struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data"`
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher 未配置消息队列时只记录日志
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, event Event) error {
	util.Logger.Debug("事件未发布（未配置消息队列）",
		zap.String("type", event.Type),
		zap.String("key", event.Key))
	return nil
}

func (NopPublisher) Close() error { return nil }
