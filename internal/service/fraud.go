package service

import (
	"crowdfunding-platform/internal/model"
	"time"
)

// 风控阈值
const (
	DuplicateDonationWindow = 60 * time.Second
	HighDonationAmount      = 1000000.0
	VelocityWindow          = time.Hour
	VelocityLimit           = 5
)

// 标记原因
const (
	ReasonDuplicateDonation = "Duplicate donation within 1 minute"
	ReasonHighAmount        = "Unusually high donation amount"
	ReasonTooManyDonations  = "Too many donations in short time"
)

// FraudVerdict 风控结果，只影响是否计入活动金额，不阻止捐款记录
type FraudVerdict struct {
	Suspicious bool
	Reason     string
}

// EvaluateFraud 按顺序检查重复捐款、大额、高频，命中即返回
// history 为该捐款人的近期捐款，窗口外的记录会被忽略
func EvaluateFraud(history []*model.Donation, donorID, campaignID int, amount float64, now time.Time) FraudVerdict {
	for _, d := range history {
		if d.DonorID == donorID && d.CampaignID == campaignID && within(d.CreatedAt, now, DuplicateDonationWindow) {
			return FraudVerdict{Suspicious: true, Reason: ReasonDuplicateDonation}
		}
	}

	if amount > HighDonationAmount {
		return FraudVerdict{Suspicious: true, Reason: ReasonHighAmount}
	}

	recent := 0
	for _, d := range history {
		if d.DonorID == donorID && within(d.CreatedAt, now, VelocityWindow) {
			recent++
		}
	}
	if recent >= VelocityLimit {
		return FraudVerdict{Suspicious: true, Reason: ReasonTooManyDonations}
	}

	return FraudVerdict{}
}

func within(t, now time.Time, window time.Duration) bool {
	return !t.Before(now.Add(-window))
}
