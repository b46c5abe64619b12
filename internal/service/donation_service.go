package service

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/events"
	"crowdfunding-platform/internal/ids"
	"crowdfunding-platform/internal/lock"
	"crowdfunding-platform/internal/metrics"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"crowdfunding-platform/internal/util"
	stderrors "errors"
	"math"
	"strings"

	"go.uber.org/zap"
)

// 返回给捐款人的提示
const (
	MessageDonationSuccessful = "Donation successful"
	MessageDonationFlagged    = "Donation flagged for review due to suspicious activity"
)

// DonationServiceInterface 供处理器使用的捐款服务
type DonationServiceInterface interface {
	Create(ctx context.Context, donorID int, input CreateDonationInput) (*DonationResult, error)
	ListByDonor(ctx context.Context, donorID int) ([]*model.Donation, error)
	RequestRefund(ctx context.Context, donorID, donationID int, reason string) (*model.Donation, error)
	ProcessRefund(ctx context.Context, donationID int, approve bool) (*model.Donation, error)
	ListPendingRefunds(ctx context.Context) ([]*model.Donation, error)
	ListSuspicious(ctx context.Context) ([]*model.Donation, error)
}

// CreateDonationInput 捐款参数
type CreateDonationInput struct {
	CampaignID    int
	Amount        float64
	PaymentMethod string
}

// DonationResult 捐款结果，被标记时 Warning 非空
type DonationResult struct {
	Donation *model.Donation
	Message  string
	Warning  string
}

// DonationService 捐款与退款
type DonationService struct {
	donationRepo interfaces.DonationRepository
	campaignRepo interfaces.CampaignRepository
	userRepo     interfaces.UserRepository
	locker       lock.Locker
	notifier     Notifier
	publisher    events.Publisher
	now          Clock
}

// NewDonationService 创建捐款服务
func NewDonationService(
	donationRepo interfaces.DonationRepository,
	campaignRepo interfaces.CampaignRepository,
	userRepo interfaces.UserRepository,
	locker lock.Locker,
	notifier Notifier,
	publisher events.Publisher,
) *DonationService {
	return &DonationService{
		donationRepo: donationRepo,
		campaignRepo: campaignRepo,
		userRepo:     userRepo,
		locker:       locker,
		notifier:     notifier,
		publisher:    publisher,
		now:          utcNow,
	}
}

var _ DonationServiceInterface = (*DonationService)(nil)

var paymentMethods = map[string]bool{
	"upi":        true,
	"card":       true,
	"netbanking": true,
	"wallet":     true,
}

// Create 创建捐款。风控命中时仍保存记录，但不计入活动金额
func (s *DonationService) Create(ctx context.Context, donorID int, input CreateDonationInput) (*DonationResult, error) {
	if input.CampaignID <= 0 {
		return nil, errors.New(errors.ErrValidation, "campaignId is required")
	}
	if !(input.Amount > 0) || math.IsInf(input.Amount, 0) {
		return nil, errors.New(errors.ErrValidation, "amount must be greater than 0")
	}
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method == "" {
		method = model.DefaultPaymentMethod
	}
	if !paymentMethods[method] {
		return nil, errors.New(errors.ErrValidation, "unsupported payment method")
	}

	donor, err := s.userRepo.FindByID(ctx, donorID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to look up donor", err)
	}
	if donor == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "Donor not found")
	}

	campaign, err := s.campaignRepo.FindByID(ctx, input.CampaignID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load campaign", err)
	}
	if campaign == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "Campaign not found")
	}
	if campaign.CheckExpired(s.now()) {
		if err := s.campaignRepo.MarkExpired(ctx, campaign.ID); err != nil {
			util.Logger.Warn("标记活动过期失败", zap.Int("campaign_id", campaign.ID), zap.Error(err))
		}
	}
	if !campaign.AcceptsDonations() {
		if campaign.Status == model.CampaignStatusApproved {
			return nil, errors.New(errors.ErrInvalidState, "Campaign has expired")
		}
		return nil, errors.New(errors.ErrInvalidState, "Campaign is not accepting donations")
	}

	// 同一捐款人的风控检查与写入串行执行，避免并发的重复捐款都通过检查
	unlock, err := s.locker.Lock(ctx, lock.DonorKey(donorID))
	if err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, "donation is being processed, please retry", err)
	}
	defer unlock()

	now := s.now()
	history, err := s.donationRepo.ListRecentByDonor(ctx, donorID, now.Add(-VelocityWindow))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load donation history", err)
	}
	verdict := EvaluateFraud(history, donorID, campaign.ID, input.Amount, now)

	donation := &model.Donation{
		DonorID:          donorID,
		DonorEmail:       donor.Email,
		CampaignID:       campaign.ID,
		Amount:           input.Amount,
		PaymentMethod:    method,
		PaymentStatus:    model.PaymentStatusCompleted,
		TransactionID:    ids.TransactionID(now),
		RefundStatus:     model.RefundStatusNone,
		IsSuspicious:     verdict.Suspicious,
		SuspiciousReason: verdict.Reason,
		CreatedAt:        now,
	}

	if err := s.donationRepo.CreateWithLedger(ctx, donation); err != nil {
		if stderrors.Is(err, interfaces.ErrStateChanged) {
			return nil, errors.New(errors.ErrInvalidState, "Campaign is not accepting donations")
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to record donation", err)
	}

	result := &DonationResult{Donation: donation, Message: MessageDonationSuccessful}
	eventType := events.DonationCreated
	if verdict.Suspicious {
		result.Message = MessageDonationFlagged
		result.Warning = "This donation has been flagged for review: " + verdict.Reason
		eventType = events.DonationFlagged
		metrics.DonationsTotal.WithLabelValues("flagged").Inc()
		util.Logger.Warn("捐款被风控标记",
			zap.Int("donation_id", donation.ID),
			zap.Int("donor_id", donorID),
			zap.String("reason", verdict.Reason))
	} else {
		metrics.DonationsTotal.WithLabelValues("applied").Inc()
		metrics.DonatedAmount.Add(donation.Amount)
	}

	publish(ctx, s.publisher, eventType, campaignKey(campaign.ID), map[string]interface{}{
		"donationId":    donation.ID,
		"campaignId":    campaign.ID,
		"donorId":       donorID,
		"amount":        donation.Amount,
		"transactionId": donation.TransactionID,
		"reason":        verdict.Reason,
	})
	return result, nil
}

// ListByDonor 捐款人的捐款记录
func (s *DonationService) ListByDonor(ctx context.Context, donorID int) ([]*model.Donation, error) {
	donations, err := s.donationRepo.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list donations", err)
	}
	return donations, nil
}

// RequestRefund 捐款人在七天内申请退款
func (s *DonationService) RequestRefund(ctx context.Context, donorID, donationID int, reason string) (*model.Donation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.New(errors.ErrValidation, "Refund reason is required")
	}

	donation, err := s.find(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.DonorID != donorID {
		return nil, errors.New(errors.ErrForbidden, "You can only request refunds for your own donations")
	}
	if donation.RefundStatus != model.RefundStatusNone {
		return nil, errors.New(errors.ErrInvalidState, "Refund already requested or processed")
	}
	if donation.PaymentStatus != model.PaymentStatusCompleted {
		return nil, errors.New(errors.ErrInvalidState, "Only completed donations can be refunded")
	}
	now := s.now()
	if !donation.WithinRefundWindow(now) {
		return nil, errors.New(errors.ErrInvalidState, "Refund window expired")
	}

	ok, err := s.donationRepo.MarkRefundRequested(ctx, donationID, reason, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to request refund", err)
	}
	if !ok {
		return nil, errors.New(errors.ErrInvalidState, "Refund already requested or processed")
	}

	donation.RefundStatus = model.RefundStatusRequested
	donation.RefundReason = reason
	donation.RefundRequestedAt = &now

	metrics.RefundsTotal.WithLabelValues("requested").Inc()
	publish(ctx, s.publisher, events.RefundRequested, campaignKey(donation.CampaignID), map[string]interface{}{
		"donationId": donation.ID,
		"donorId":    donorID,
		"amount":     donation.Amount,
	})
	util.Logger.Info("收到退款申请", zap.Int("donation_id", donationID), zap.Int("donor_id", donorID))
	return donation, nil
}

// ProcessRefund 管理员处理退款申请
func (s *DonationService) ProcessRefund(ctx context.Context, donationID int, approve bool) (*model.Donation, error) {
	donation, err := s.find(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.RefundStatus != model.RefundStatusRequested {
		return nil, errors.New(errors.ErrInvalidState, "No pending refund request for this donation")
	}

	now := s.now()
	var ok bool
	if approve {
		ok, err = s.donationRepo.CompleteRefund(ctx, donation, now)
	} else {
		ok, err = s.donationRepo.RejectRefund(ctx, donationID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to process refund", err)
	}
	if !ok {
		return nil, errors.New(errors.ErrInvalidState, "No pending refund request for this donation")
	}

	stage := "rejected"
	if approve {
		stage = "approved"
		donation.RefundStatus = model.RefundStatusCompleted
		donation.PaymentStatus = model.PaymentStatusRefunded
		donation.RefundedAt = &now
	} else {
		donation.RefundStatus = model.RefundStatusRejected
	}

	metrics.RefundsTotal.WithLabelValues(stage).Inc()
	publish(ctx, s.publisher, events.RefundProcessed, campaignKey(donation.CampaignID), map[string]interface{}{
		"donationId": donation.ID,
		"approved":   approve,
		"amount":     donation.Amount,
		"suspicious": donation.IsSuspicious,
	})
	s.notifier.RefundProcessed(donation.DonorEmail, donation, approve)

	util.Logger.Info("退款已处理", zap.Int("donation_id", donationID), zap.Bool("approved", approve))
	return donation, nil
}

// ListPendingRefunds 待处理的退款申请
func (s *DonationService) ListPendingRefunds(ctx context.Context) ([]*model.Donation, error) {
	donations, err := s.donationRepo.ListPendingRefunds(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list refund requests", err)
	}
	return donations, nil
}

// ListSuspicious 被风控标记的捐款
func (s *DonationService) ListSuspicious(ctx context.Context) ([]*model.Donation, error) {
	donations, err := s.donationRepo.ListSuspicious(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list suspicious donations", err)
	}
	return donations, nil
}

func (s *DonationService) find(ctx context.Context, id int) (*model.Donation, error) {
	donation, err := s.donationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load donation", err)
	}
	if donation == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "Donation not found")
	}
	return donation, nil
}
