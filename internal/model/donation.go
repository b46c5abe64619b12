package model

import "time"

// 支付状态
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// 退款状态
const (
	RefundStatusNone       = "none"
	RefundStatusRequested  = "requested"
	RefundStatusProcessing = "processing"
	RefundStatusCompleted  = "completed"
	RefundStatusRejected   = "rejected"
)

// DefaultPaymentMethod 未指定支付方式时使用
const DefaultPaymentMethod = "upi"

// RefundWindow 捐款后可申请退款的时长
const RefundWindow = 7 * 24 * time.Hour

// Donation 捐款记录
type Donation struct {
	ID                int        `json:"id"`
	DonorID           int        `json:"donorId"`
	DonorEmail        string     `json:"donorEmail"` // 捐款时的快照
	CampaignID        int        `json:"campaignId"`
	Amount            float64    `json:"amount"`
	PaymentMethod     string     `json:"paymentMethod"`
	PaymentStatus     string     `json:"paymentStatus"`
	TransactionID     string     `json:"transactionId"`
	RefundStatus      string     `json:"refundStatus"`
	RefundReason      string     `json:"refundReason,omitempty"`
	RefundRequestedAt *time.Time `json:"refundRequestedAt,omitempty"`
	RefundedAt        *time.Time `json:"refundedAt,omitempty"`
	IsSuspicious      bool       `json:"isSuspicious"`
	SuspiciousReason  string     `json:"suspiciousReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`

	Campaign  *CampaignSummary `json:"campaign,omitempty"`
	DonorName string           `json:"donorName,omitempty"`
}

// WithinRefundWindow 判断在 now 时刻是否仍可申请退款
func (d *Donation) WithinRefundWindow(now time.Time) bool {
	return now.Sub(d.CreatedAt) <= RefundWindow
}
