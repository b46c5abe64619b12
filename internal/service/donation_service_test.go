package service

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/events"
	"crowdfunding-platform/internal/model"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonationRefundLifecycle(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)

	c, err := p.campaigns.Submit(ctx, creator.ID, SubmitCampaignInput{
		Title:        "Clean water",
		Description:  "Wells for the village",
		TargetAmount: 10000,
		EndDate:      p.clock.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = p.campaigns.Approve(ctx, c.ID, 0)
	require.NoError(t, err)

	result, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 500, PaymentMethod: "upi"})
	require.NoError(t, err)
	assert.Equal(t, MessageDonationSuccessful, result.Message)
	assert.Empty(t, result.Warning)
	assert.False(t, result.Donation.IsSuspicious)
	assert.Equal(t, "dev@example.com", result.Donation.DonorEmail)
	assert.Equal(t, model.PaymentStatusCompleted, result.Donation.PaymentStatus)
	assert.True(t, strings.HasPrefix(result.Donation.TransactionID, "TXN"))
	assert.Equal(t, 500.0, p.store.campaign(c.ID).CurrentAmount)

	requested, err := p.donations.RequestRefund(ctx, donor.ID, result.Donation.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusRequested, requested.RefundStatus)

	pending, err := p.donations.ListPendingRefunds(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	processed, err := p.donations.ProcessRefund(ctx, result.Donation.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusCompleted, processed.RefundStatus)
	assert.Equal(t, model.PaymentStatusRefunded, processed.PaymentStatus)
	assert.NotNil(t, processed.RefundedAt)
	assert.Equal(t, 0.0, p.store.campaign(c.ID).CurrentAmount)
	assert.Equal(t, []bool{true}, p.notifier.refunds)

	// 已处理的退款不能再次处理
	_, err = p.donations.ProcessRefund(ctx, result.Donation.ID, true)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	assert.Equal(t, []string{
		events.CampaignReviewed,
		events.DonationCreated,
		events.RefundRequested,
		events.RefundProcessed,
	}, p.publisher.types())
}

func TestDonationValidation(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 1000)

	tests := []struct {
		name  string
		input CreateDonationInput
		code  errors.ErrorCode
	}{
		{"金额为零", CreateDonationInput{CampaignID: c.ID, Amount: 0}, errors.ErrValidation},
		{"金额为负", CreateDonationInput{CampaignID: c.ID, Amount: -5}, errors.ErrValidation},
		{"缺少活动", CreateDonationInput{Amount: 10}, errors.ErrValidation},
		{"不支持的支付方式", CreateDonationInput{CampaignID: c.ID, Amount: 10, PaymentMethod: "cash"}, errors.ErrValidation},
		{"活动不存在", CreateDonationInput{CampaignID: 999, Amount: 10}, errors.ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.donations.Create(ctx, donor.ID, tt.input)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
	assert.Zero(t, p.store.campaign(c.ID).CurrentAmount)

	result, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPaymentMethod, result.Donation.PaymentMethod)
}

func TestDonationRequiresApprovedLiveCampaign(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)

	pending, err := p.campaigns.Submit(ctx, creator.ID, SubmitCampaignInput{
		Title: "draft", Description: "d", TargetAmount: 100, EndDate: p.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: pending.ID, Amount: 10})
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	assert.Contains(t, err.Error(), "not accepting donations")

	live := p.approvedCampaign(t, creator, "live", 100)
	p.clock.Advance(31 * 24 * time.Hour)
	_, err = p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: live.ID, Amount: 10})
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	assert.Contains(t, err.Error(), "Campaign has expired")
	assert.True(t, p.store.campaign(live.ID).IsExpired)
	assert.Zero(t, p.store.campaign(live.ID).CurrentAmount)
}

// expiringDonations 在写入捐款前把活动标记为已过期
type expiringDonations struct {
	memDonations
}

func (r expiringDonations) CreateWithLedger(ctx context.Context, d *model.Donation) error {
	r.mu.Lock()
	r.campaigns[d.CampaignID].IsExpired = true
	r.mu.Unlock()
	return r.memDonations.CreateWithLedger(ctx, d)
}

func TestDonationLosesToConcurrentExpiry(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	live := p.approvedCampaign(t, creator, "live", 100)

	p.donations.donationRepo = expiringDonations{memDonations{p.store}}

	_, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: live.ID, Amount: 10})
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	assert.Zero(t, p.store.campaign(live.ID).CurrentAmount)
	assert.Empty(t, p.store.donations)
}

func TestFlaggedDonationsDoNotMoveCampaignAmount(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	whale := p.store.addUser("Whale", "whale@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	_, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 100})
	require.NoError(t, err)

	p.clock.Advance(30 * time.Second)
	dup, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 1})
	require.NoError(t, err)
	assert.True(t, dup.Donation.IsSuspicious)
	assert.Equal(t, ReasonDuplicateDonation, dup.Donation.SuspiciousReason)
	assert.Equal(t, MessageDonationFlagged, dup.Message)
	assert.NotEmpty(t, dup.Warning)
	assert.Equal(t, 100.0, p.store.campaign(c.ID).CurrentAmount)

	big, err := p.donations.Create(ctx, whale.ID, CreateDonationInput{CampaignID: c.ID, Amount: 1000001})
	require.NoError(t, err)
	assert.True(t, big.Donation.IsSuspicious)
	assert.Equal(t, ReasonHighAmount, big.Donation.SuspiciousReason)
	assert.Equal(t, 100.0, p.store.campaign(c.ID).CurrentAmount)

	suspicious, err := p.donations.ListSuspicious(ctx)
	require.NoError(t, err)
	assert.Len(t, suspicious, 2)

	// 被标记的捐款退款后不会扣减活动金额
	_, err = p.donations.RequestRefund(ctx, whale.ID, big.Donation.ID, "mistake")
	require.NoError(t, err)
	_, err = p.donations.ProcessRefund(ctx, big.Donation.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.store.campaign(c.ID).CurrentAmount)
}

func TestVelocityFlagging(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	for i := 0; i < VelocityLimit; i++ {
		r, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 10})
		require.NoError(t, err)
		assert.False(t, r.Donation.IsSuspicious, "donation %d", i)
		p.clock.Advance(2 * time.Minute)
	}

	r, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 10})
	require.NoError(t, err)
	assert.True(t, r.Donation.IsSuspicious)
	assert.Equal(t, ReasonTooManyDonations, r.Donation.SuspiciousReason)
	assert.Equal(t, 50.0, p.store.campaign(c.ID).CurrentAmount)

	// 一小时后窗口内的记录清空
	p.clock.Advance(time.Hour)
	r, err = p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 10})
	require.NoError(t, err)
	assert.False(t, r.Donation.IsSuspicious)
}

func TestRefundRequestRules(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	stranger := p.store.addUser("Sam", "sam@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	early, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 100})
	require.NoError(t, err)
	p.clock.Advance(2 * time.Minute)
	late, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 50})
	require.NoError(t, err)

	_, err = p.donations.RequestRefund(ctx, donor.ID, 999, "why")
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))

	_, err = p.donations.RequestRefund(ctx, stranger.ID, early.Donation.ID, "mine now")
	assert.True(t, errors.Is(err, errors.ErrForbidden))

	_, err = p.donations.RequestRefund(ctx, donor.ID, early.Donation.ID, "  ")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	// 第六天仍可申请
	p.clock.Advance(6 * 24 * time.Hour)
	_, err = p.donations.RequestRefund(ctx, donor.ID, early.Donation.ID, "changed mind")
	require.NoError(t, err)

	_, err = p.donations.RequestRefund(ctx, donor.ID, early.Donation.ID, "again")
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	// 第八天超出退款期限
	p.clock.Advance(2 * 24 * time.Hour)
	_, err = p.donations.RequestRefund(ctx, donor.ID, late.Donation.ID, "too late")
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	mine, err := p.donations.ListByDonor(ctx, donor.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestProcessRefundRejectKeepsAmount(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	r, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 300})
	require.NoError(t, err)

	_, err = p.donations.ProcessRefund(ctx, r.Donation.ID, true)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	_, err = p.donations.RequestRefund(ctx, donor.ID, r.Donation.ID, "changed mind")
	require.NoError(t, err)

	rejected, err := p.donations.ProcessRefund(ctx, r.Donation.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusRejected, rejected.RefundStatus)
	assert.Equal(t, model.PaymentStatusCompleted, rejected.PaymentStatus)
	assert.Equal(t, 300.0, p.store.campaign(c.ID).CurrentAmount)
	assert.Equal(t, []bool{false}, p.notifier.refunds)

	_, err = p.donations.ProcessRefund(ctx, 999, true)
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))
}

func TestRefundClampsCampaignAmountAtZero(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	r, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 300})
	require.NoError(t, err)

	p.store.mu.Lock()
	p.store.campaigns[c.ID].CurrentAmount = 100
	p.store.mu.Unlock()

	_, err = p.donations.RequestRefund(ctx, donor.ID, r.Donation.ID, "changed mind")
	require.NoError(t, err)
	_, err = p.donations.ProcessRefund(ctx, r.Donation.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.store.campaign(c.ID).CurrentAmount)
}

func TestConcurrentDuplicateDonationsAreSerialized(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	donor := p.store.addUser("Dev", "dev@example.com", model.RoleDonor)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := p.donations.Create(ctx, donor.ID, CreateDonationInput{CampaignID: c.ID, Amount: 25})
			if !assert.NoError(t, err) {
				return
			}
			if !r.Donation.IsSuspicious {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 25.0, p.store.campaign(c.ID).CurrentAmount)
}

func TestConcurrentDonorsAllCounted(t *testing.T) {
	p := newPlatform()
	ctx := context.Background()
	creator := p.store.addUser("Asha", "asha@example.com", model.RoleCreator)
	c := p.approvedCampaign(t, creator, "Clean water", 10000)

	const n = 20
	donors := make([]*model.User, n)
	for i := range donors {
		donors[i] = p.store.addUser("donor", "donor"+string(rune('a'+i))+"@example.com", model.RoleDonor)
	}

	var wg sync.WaitGroup
	for _, d := range donors {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := p.donations.Create(ctx, id, CreateDonationInput{CampaignID: c.ID, Amount: 10})
			assert.NoError(t, err)
		}(d.ID)
	}
	wg.Wait()

	assert.Equal(t, 200.0, p.store.campaign(c.ID).CurrentAmount)
}
