package model

// CreatorAnalytics 创建者的活动统计
type CreatorAnalytics struct {
	TotalCampaigns    int                `json:"totalCampaigns"`
	PendingCampaigns  int                `json:"pendingCampaigns"`
	ApprovedCampaigns int                `json:"approvedCampaigns"`
	RejectedCampaigns int                `json:"rejectedCampaigns"`
	TotalRaised       float64            `json:"totalRaised"`
	TotalTarget       float64            `json:"totalTarget"`
	AverageProgress   float64            `json:"averageProgress"` // 百分比，保留一位小数
	TotalDonations    int                `json:"totalDonations"`
	TopCampaigns      []CampaignProgress `json:"topCampaigns"`
}

// CampaignProgress 排行榜中的单个活动
type CampaignProgress struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	TargetAmount  float64 `json:"targetAmount"`
	CurrentAmount float64 `json:"currentAmount"`
	Progress      float64 `json:"progress"` // 百分比，保留一位小数
	DonationCount int     `json:"donationCount"`
}
