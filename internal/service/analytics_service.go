package service

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"math"
	"sort"
)

const topCampaignLimit = 5

type AnalyticsServiceInterface interface {
	CreatorAnalytics(ctx context.Context, creatorID int) (*model.CreatorAnalytics, error)
}

// AnalyticsService 创建者统计，每次请求实时计算
type AnalyticsService struct {
	campaignRepo interfaces.CampaignRepository
	donationRepo interfaces.DonationRepository
}

func NewAnalyticsService(campaignRepo interfaces.CampaignRepository, donationRepo interfaces.DonationRepository) *AnalyticsService {
	return &AnalyticsService{campaignRepo: campaignRepo, donationRepo: donationRepo}
}

var _ AnalyticsServiceInterface = (*AnalyticsService)(nil)

func (s *AnalyticsService) CreatorAnalytics(ctx context.Context, creatorID int) (*model.CreatorAnalytics, error) {
	campaigns, err := s.campaignRepo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load campaigns", err)
	}

	ids := make([]int, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	counts, err := s.donationRepo.CountByCampaigns(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to count donations", err)
	}

	return summarize(campaigns, counts), nil
}

func summarize(campaigns []*model.Campaign, counts map[int]int) *model.CreatorAnalytics {
	result := &model.CreatorAnalytics{
		TotalCampaigns: len(campaigns),
		TopCampaigns:   []model.CampaignProgress{},
	}

	var approved []*model.Campaign
	for _, c := range campaigns {
		switch c.Status {
		case model.CampaignStatusPending:
			result.PendingCampaigns++
		case model.CampaignStatusApproved:
			result.ApprovedCampaigns++
			approved = append(approved, c)
		case model.CampaignStatusRejected:
			result.RejectedCampaigns++
		}
		result.TotalRaised += c.CurrentAmount
		result.TotalTarget += c.TargetAmount
		result.TotalDonations += counts[c.ID]
	}
	if result.TotalTarget > 0 {
		result.AverageProgress = round1(result.TotalRaised / result.TotalTarget * 100)
	}

	sort.SliceStable(approved, func(i, j int) bool {
		return approved[i].Progress() > approved[j].Progress()
	})
	if len(approved) > topCampaignLimit {
		approved = approved[:topCampaignLimit]
	}
	for _, c := range approved {
		result.TopCampaigns = append(result.TopCampaigns, model.CampaignProgress{
			ID:            c.ID,
			Title:         c.Title,
			TargetAmount:  c.TargetAmount,
			CurrentAmount: c.CurrentAmount,
			Progress:      round1(c.Progress() * 100),
			DonationCount: counts[c.ID],
		})
	}
	return result
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
