package service

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"crowdfunding-platform/internal/util"

	"go.uber.org/zap"
)

// RatingResult 评分后的活动汇总
type RatingResult struct {
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int     `json:"totalRatings"`
}

type RatingServiceInterface interface {
	Rate(ctx context.Context, campaignID, raterID, score int) (*RatingResult, error)
}

// RatingService 活动评分，只有捐过款的用户可以评分
type RatingService struct {
	campaignRepo interfaces.CampaignRepository
	donationRepo interfaces.DonationRepository
	now          Clock
}

func NewRatingService(campaignRepo interfaces.CampaignRepository, donationRepo interfaces.DonationRepository) *RatingService {
	return &RatingService{
		campaignRepo: campaignRepo,
		donationRepo: donationRepo,
		now:          utcNow,
	}
}

var _ RatingServiceInterface = (*RatingService)(nil)

// Rate 写入评分，重复评分覆盖之前的分数
func (s *RatingService) Rate(ctx context.Context, campaignID, raterID, score int) (*RatingResult, error) {
	if score < 1 || score > 5 {
		return nil, errors.New(errors.ErrValidation, "Rating must be between 1 and 5")
	}

	campaign, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load campaign", err)
	}
	if campaign == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "Campaign not found")
	}
	if campaign.Status != model.CampaignStatusApproved {
		return nil, errors.New(errors.ErrInvalidState, "Only approved campaigns can be rated")
	}
	if campaign.CreatorID == raterID {
		return nil, errors.New(errors.ErrForbidden, "You cannot rate your own campaign")
	}

	donated, err := s.donationRepo.HasDonated(ctx, raterID, campaignID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to check donation history", err)
	}
	if !donated {
		return nil, errors.New(errors.ErrForbidden, "Only donors can rate this campaign")
	}

	avg, total, err := s.campaignRepo.UpsertRating(ctx, campaignID, raterID, score, s.now())
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to save rating", err)
	}

	util.Logger.Info("活动评分已更新",
		zap.Int("campaign_id", campaignID),
		zap.Int("user_id", raterID),
		zap.Int("rating", score),
		zap.Float64("average", avg))
	return &RatingResult{AverageRating: avg, TotalRatings: total}, nil
}
