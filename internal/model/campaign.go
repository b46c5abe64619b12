package model

import "time"

// 活动状态
const (
	CampaignStatusPending  = "pending"
	CampaignStatusApproved = "approved"
	CampaignStatusRejected = "rejected"
)

// Campaign 众筹活动
type Campaign struct {
	ID              int              `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	TargetAmount    float64          `json:"targetAmount"`
	CurrentAmount   float64          `json:"currentAmount"` // 已筹集金额，只计入未被标记的捐款
	EndDate         time.Time        `json:"endDate"`
	CreatorID       int              `json:"creatorId"`
	CreatorName     string           `json:"creatorName"` // 提交时的快照，不随用户资料变化
	Status          string           `json:"status"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	IsExpired       bool             `json:"isExpired"`
	AverageRating   float64          `json:"averageRating"`
	TotalRatings    int              `json:"totalRatings"`
	ImageURL        string           `json:"imageUrl,omitempty"`
	Ratings         []CampaignRating `json:"ratings,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// CampaignRating 每个用户对活动的一条评分
type CampaignRating struct {
	UserID    int       `json:"userId"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

// CheckExpired 在结束时间已过且尚未标记时置过期标记，返回是否发生变化
func (c *Campaign) CheckExpired(now time.Time) bool {
	if c.IsExpired || !now.After(c.EndDate) {
		return false
	}
	c.IsExpired = true
	return true
}

// IsEditable 创建者只能在待审核或已通过时修改活动
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusPending || c.Status == CampaignStatusApproved
}

// AcceptsDonations 活动已通过且未过期
func (c *Campaign) AcceptsDonations() bool {
	return c.Status == CampaignStatusApproved && !c.IsExpired
}

// Progress 返回筹款进度的比例，目标为 0 时返回 0
func (c *Campaign) Progress() float64 {
	if c.TargetAmount <= 0 {
		return 0
	}
	return c.CurrentAmount / c.TargetAmount
}

// CampaignFilter 活动列表的查询条件
type CampaignFilter struct {
	Status string
	Search string // 标题关键字，不区分大小写
}

// CampaignSummary 捐款列表中附带的活动摘要
type CampaignSummary struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	TargetAmount  float64 `json:"targetAmount"`
	CurrentAmount float64 `json:"currentAmount"`
	Status        string  `json:"status"`
}
