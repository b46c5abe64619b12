package service

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/events"
	"crowdfunding-platform/internal/metrics"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"crowdfunding-platform/internal/util"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CampaignServiceInterface 供处理器使用的活动服务
type CampaignServiceInterface interface {
	Submit(ctx context.Context, creatorID int, input SubmitCampaignInput) (*model.Campaign, error)
	Get(ctx context.Context, id int) (*model.Campaign, error)
	List(ctx context.Context, filter model.CampaignFilter) ([]*model.Campaign, error)
	ListByCreator(ctx context.Context, creatorID int) ([]*model.Campaign, error)
	Approve(ctx context.Context, id, actorID int) (*model.Campaign, error)
	Reject(ctx context.Context, id int, reason string) (*model.Campaign, error)
	Edit(ctx context.Context, id, actorID int, input EditCampaignInput) (*model.Campaign, error)
	Delete(ctx context.Context, id, actorID int) error
}

// SubmitCampaignInput 提交活动的参数
type SubmitCampaignInput struct {
	Title        string
	Description  string
	TargetAmount float64
	EndDate      time.Time
	ImageURL     string
}

// EditCampaignInput 只更新非空字段
type EditCampaignInput struct {
	Title        *string
	Description  *string
	TargetAmount *float64
	EndDate      *time.Time
	ImageURL     *string
}

// CampaignService 活动生命周期管理
type CampaignService struct {
	campaignRepo interfaces.CampaignRepository
	userRepo     interfaces.UserRepository
	notifier     Notifier
	publisher    events.Publisher
	now          Clock
}

// NewCampaignService 创建活动服务
func NewCampaignService(
	campaignRepo interfaces.CampaignRepository,
	userRepo interfaces.UserRepository,
	notifier Notifier,
	publisher events.Publisher,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		userRepo:     userRepo,
		notifier:     notifier,
		publisher:    publisher,
		now:          utcNow,
	}
}

var _ CampaignServiceInterface = (*CampaignService)(nil)

// Submit 创建者提交活动，初始状态为待审核
func (s *CampaignService) Submit(ctx context.Context, creatorID int, input SubmitCampaignInput) (*model.Campaign, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" || input.TargetAmount <= 0 || input.EndDate.IsZero() {
		return nil, errors.New(errors.ErrValidation, "title, description, targetAmount and endDate are required")
	}

	creator, err := s.userRepo.FindByID(ctx, creatorID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to look up creator", err)
	}
	if creator == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "Creator not found")
	}

	now := s.now()
	campaign := &model.Campaign{
		Title:        title,
		Description:  description,
		TargetAmount: input.TargetAmount,
		EndDate:      input.EndDate.UTC(),
		CreatorID:    creator.ID,
		CreatorName:  creator.DisplayName(),
		Status:       model.CampaignStatusPending,
		ImageURL:     input.ImageURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	campaign.CheckExpired(now)

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to create campaign", err)
	}

	util.Logger.Info("活动已提交",
		zap.Int("campaign_id", campaign.ID),
		zap.Int("creator_id", creator.ID))
	return campaign, nil
}

// Get 获取单个活动，读取时检查是否过期
func (s *CampaignService) Get(ctx context.Context, id int) (*model.Campaign, error) {
	campaign, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshExpiry(ctx, campaign)
	return campaign, nil
}

// List 查询活动列表，逐个检查是否过期
func (s *CampaignService) List(ctx context.Context, filter model.CampaignFilter) ([]*model.Campaign, error) {
	if filter.Status != "" && !isCampaignStatus(filter.Status) {
		return nil, errors.New(errors.ErrValidation, "invalid status filter")
	}

	campaigns, err := s.campaignRepo.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list campaigns", err)
	}
	for _, c := range campaigns {
		s.refreshExpiry(ctx, c)
	}
	return campaigns, nil
}

// ListByCreator 创建者查看自己的活动
func (s *CampaignService) ListByCreator(ctx context.Context, creatorID int) ([]*model.Campaign, error) {
	campaigns, err := s.campaignRepo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list campaigns", err)
	}
	for _, c := range campaigns {
		s.refreshExpiry(ctx, c)
	}
	return campaigns, nil
}

// Approve 审核通过，调用方负责校验管理员身份
func (s *CampaignService) Approve(ctx context.Context, id, actorID int) (*model.Campaign, error) {
	campaign, err := s.transition(ctx, id, model.CampaignStatusApproved, "")
	if err != nil {
		return nil, err
	}
	util.Logger.Info("活动审核通过", zap.Int("campaign_id", id), zap.Int("admin_id", actorID))
	return campaign, nil
}

// Reject 驳回活动，必须填写原因
func (s *CampaignService) Reject(ctx context.Context, id int, reason string) (*model.Campaign, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.New(errors.ErrValidation, "Rejection reason is required")
	}

	campaign, err := s.transition(ctx, id, model.CampaignStatusRejected, reason)
	if err != nil {
		return nil, err
	}
	util.Logger.Info("活动被驳回", zap.Int("campaign_id", id))
	return campaign, nil
}

func (s *CampaignService) transition(ctx context.Context, id int, to, reason string) (*model.Campaign, error) {
	campaign, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusPending {
		return nil, errors.New(errors.ErrInvalidState, "Campaign is not pending review")
	}

	ok, err := s.campaignRepo.TransitionStatus(ctx, id, model.CampaignStatusPending, to, reason)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to update campaign status", err)
	}
	if !ok {
		return nil, errors.New(errors.ErrInvalidState, "Campaign is not pending review")
	}

	campaign.Status = to
	campaign.RejectionReason = reason
	campaign.UpdatedAt = s.now()
	s.refreshExpiry(ctx, campaign)

	metrics.CampaignReviewsTotal.WithLabelValues(to).Inc()
	publish(ctx, s.publisher, events.CampaignReviewed, campaignKey(id), map[string]interface{}{
		"campaignId": id,
		"status":     to,
		"reason":     reason,
	})
	s.notifyCreator(ctx, campaign)
	return campaign, nil
}

func (s *CampaignService) notifyCreator(ctx context.Context, campaign *model.Campaign) {
	creator, err := s.userRepo.FindByID(ctx, campaign.CreatorID)
	if err != nil || creator == nil {
		util.Logger.Warn("无法通知活动创建者", zap.Int("campaign_id", campaign.ID), zap.Error(err))
		return
	}
	s.notifier.CampaignReviewed(creator.Email, campaign)
}

// Edit 创建者在待审核或已通过状态下修改活动
func (s *CampaignService) Edit(ctx context.Context, id, actorID int, input EditCampaignInput) (*model.Campaign, error) {
	campaign, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.CreatorID != actorID {
		return nil, errors.New(errors.ErrForbidden, "Only the creator can edit this campaign")
	}
	if !campaign.IsEditable() {
		return nil, errors.New(errors.ErrInvalidState, "Only pending or approved campaigns can be edited")
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errors.New(errors.ErrValidation, "title cannot be empty")
		}
		campaign.Title = title
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, errors.New(errors.ErrValidation, "description cannot be empty")
		}
		campaign.Description = description
	}
	if input.TargetAmount != nil {
		if *input.TargetAmount <= 0 {
			return nil, errors.New(errors.ErrValidation, "targetAmount must be positive")
		}
		campaign.TargetAmount = *input.TargetAmount
	}
	if input.EndDate != nil {
		if input.EndDate.IsZero() {
			return nil, errors.New(errors.ErrValidation, "endDate is invalid")
		}
		campaign.EndDate = input.EndDate.UTC()
	}
	if input.ImageURL != nil {
		campaign.ImageURL = *input.ImageURL
	}
	campaign.UpdatedAt = s.now()

	ok, err := s.campaignRepo.Update(ctx, campaign)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to update campaign", err)
	}
	if !ok {
		// 读取之后状态已被审核改变
		return nil, errors.New(errors.ErrInvalidState, "Only pending or approved campaigns can be edited")
	}
	s.refreshExpiry(ctx, campaign)

	util.Logger.Info("活动已更新", zap.Int("campaign_id", id))
	return campaign, nil
}

// Delete 创建者删除待审核的活动
func (s *CampaignService) Delete(ctx context.Context, id, actorID int) error {
	campaign, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if campaign.CreatorID != actorID {
		return errors.New(errors.ErrForbidden, "Only the creator can delete this campaign")
	}
	if campaign.Status != model.CampaignStatusPending {
		return errors.New(errors.ErrInvalidState, "Only pending campaigns can be deleted")
	}

	ok, err := s.campaignRepo.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete campaign", err)
	}
	if !ok {
		return errors.New(errors.ErrInvalidState, "Only pending campaigns can be deleted")
	}
	return nil
}

func (s *CampaignService) find(ctx context.Context, id int) (*model.Campaign, error) {
	campaign, err := s.campaignRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load campaign", err)
	}
	if campaign == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "Campaign not found")
	}
	return campaign, nil
}

// refreshExpiry 检查过期并持久化，持久化失败不影响本次读取
func (s *CampaignService) refreshExpiry(ctx context.Context, campaign *model.Campaign) {
	if !campaign.CheckExpired(s.now()) {
		return
	}
	if err := s.campaignRepo.MarkExpired(ctx, campaign.ID); err != nil {
		util.Logger.Warn("标记活动过期失败", zap.Int("campaign_id", campaign.ID), zap.Error(err))
	}
}

func isCampaignStatus(status string) bool {
	switch status {
	case model.CampaignStatusPending, model.CampaignStatusApproved, model.CampaignStatusRejected:
		return true
	}
	return false
}
