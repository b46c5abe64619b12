package service

import (
	"context"
	"crowdfunding-platform/internal/events"
	"crowdfunding-platform/internal/lock"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"crowdfunding-platform/internal/session"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
)

// memStore 内存版仓库，行为与 MySQL 实现的条件更新保持一致
type memStore struct {
	mu        sync.Mutex
	nextID    int
	users     map[int]*model.User
	campaigns map[int]*model.Campaign
	ratings   map[int][]model.CampaignRating
	donations map[int]*model.Donation
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[int]*model.User),
		campaigns: make(map[int]*model.Campaign),
		ratings:   make(map[int][]model.CampaignRating),
		donations: make(map[int]*model.Donation),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(name, email, role string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{ID: s.id(), Name: name, Email: email, Role: role}
	s.users[u.ID] = u
	return u
}

func (s *memStore) campaign(id int) model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

type memUsers struct{ *memStore }

func (r memUsers) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.id()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r memUsers) FindByID(_ context.Context, id int) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) FindAll(_ context.Context) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.User
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

type memCampaigns struct{ *memStore }

func (r memCampaigns) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r memCampaigns) FindByID(_ context.Context, id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Ratings = append([]model.CampaignRating(nil), r.ratings[id]...)
	return &cp, nil
}

func (r memCampaigns) List(_ context.Context, filter model.CampaignFilter) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.campaigns {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageRating != out[j].AverageRating {
			return out[i].AverageRating > out[j].AverageRating
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r memCampaigns) ListByCreator(_ context.Context, creatorID int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.campaigns {
		if c.CreatorID == creatorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCampaigns) Update(_ context.Context, c *model.Campaign) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.campaigns[c.ID]
	if !ok || !stored.IsEditable() {
		return false, nil
	}
	stored.Title = c.Title
	stored.Description = c.Description
	stored.TargetAmount = c.TargetAmount
	stored.EndDate = c.EndDate
	stored.ImageURL = c.ImageURL
	stored.UpdatedAt = c.UpdatedAt
	return true, nil
}

func (r memCampaigns) Delete(_ context.Context, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.CampaignStatusPending {
		return false, nil
	}
	delete(r.campaigns, id)
	return true, nil
}

func (r memCampaigns) TransitionStatus(_ context.Context, id int, from, to, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.RejectionReason = reason
	return true, nil
}

func (r memCampaigns) MarkExpired(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.IsExpired = true
	}
	return nil
}

func (r memCampaigns) UpsertRating(_ context.Context, campaignID, userID, rating int, at time.Time) (float64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.ratings[campaignID]
	found := false
	for i := range list {
		if list[i].UserID == userID {
			list[i].Rating = rating
			list[i].CreatedAt = at
			found = true
		}
	}
	if !found {
		list = append(list, model.CampaignRating{UserID: userID, Rating: rating, CreatedAt: at})
	}
	r.ratings[campaignID] = list

	sum := 0
	for _, e := range list {
		sum += e.Rating
	}
	c := r.campaigns[campaignID]
	c.TotalRatings = len(list)
	c.AverageRating = float64(sum) / float64(len(list))
	return c.AverageRating, c.TotalRatings, nil
}

type memDonations struct{ *memStore }

func (r memDonations) CreateWithLedger(_ context.Context, d *model.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !d.IsSuspicious {
		c, ok := r.campaigns[d.CampaignID]
		if !ok || c.Status != model.CampaignStatusApproved || c.IsExpired || d.CreatedAt.After(c.EndDate) {
			return interfaces.ErrStateChanged
		}
		c.CurrentAmount += d.Amount
	}
	d.ID = r.id()
	cp := *d
	r.donations[d.ID] = &cp
	return nil
}

func (r memDonations) FindByID(_ context.Context, id int) (*model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.donations[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (r memDonations) filter(keep func(d *model.Donation) bool) []*model.Donation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Donation{}
	for _, d := range r.donations {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r memDonations) ListRecentByDonor(_ context.Context, donorID int, since time.Time) ([]*model.Donation, error) {
	return r.filter(func(d *model.Donation) bool {
		return d.DonorID == donorID && !d.CreatedAt.Before(since)
	}), nil
}

func (r memDonations) ListByDonor(_ context.Context, donorID int) ([]*model.Donation, error) {
	return r.filter(func(d *model.Donation) bool {
		_, exists := r.campaigns[d.CampaignID]
		return d.DonorID == donorID && exists
	}), nil
}

func (r memDonations) ListPendingRefunds(_ context.Context) ([]*model.Donation, error) {
	return r.filter(func(d *model.Donation) bool {
		return d.RefundStatus == model.RefundStatusRequested
	}), nil
}

func (r memDonations) ListSuspicious(_ context.Context) ([]*model.Donation, error) {
	return r.filter(func(d *model.Donation) bool { return d.IsSuspicious }), nil
}

func (r memDonations) HasDonated(_ context.Context, donorID, campaignID int) (bool, error) {
	return len(r.filter(func(d *model.Donation) bool {
		return d.DonorID == donorID && d.CampaignID == campaignID
	})) > 0, nil
}

func (r memDonations) CountByCampaigns(_ context.Context, ids []int) (map[int]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int]bool)
	for _, id := range ids {
		want[id] = true
	}
	counts := make(map[int]int)
	for _, d := range r.donations {
		if want[d.CampaignID] {
			counts[d.CampaignID]++
		}
	}
	return counts, nil
}

func (r memDonations) MarkRefundRequested(_ context.Context, id int, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok || d.RefundStatus != model.RefundStatusNone {
		return false, nil
	}
	d.RefundStatus = model.RefundStatusRequested
	d.RefundReason = reason
	d.RefundRequestedAt = &at
	return true, nil
}

func (r memDonations) CompleteRefund(_ context.Context, donation *model.Donation, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[donation.ID]
	if !ok || d.RefundStatus != model.RefundStatusRequested {
		return false, nil
	}
	d.RefundStatus = model.RefundStatusCompleted
	d.PaymentStatus = model.PaymentStatusRefunded
	d.RefundedAt = &at
	if !d.IsSuspicious {
		if c, ok := r.campaigns[d.CampaignID]; ok {
			c.CurrentAmount -= d.Amount
			if c.CurrentAmount < 0 {
				c.CurrentAmount = 0
			}
		}
	}
	return true, nil
}

func (r memDonations) RejectRefund(_ context.Context, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok || d.RefundStatus != model.RefundStatusRequested {
		return false, nil
	}
	d.RefundStatus = model.RefundStatusRejected
	return true, nil
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// recordingNotifier 记录发出的通知
type recordingNotifier struct {
	mu       sync.Mutex
	reviewed []string
	refunds  []bool
}

func (n *recordingNotifier) CampaignReviewed(to string, c *model.Campaign) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewed = append(n.reviewed, to+":"+c.Status)
}

func (n *recordingNotifier) RefundProcessed(_ string, _ *model.Donation, approved bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunds = append(n.refunds, approved)
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// platform 用内存仓库组装的全部服务
type platform struct {
	store     *memStore
	clock     *fakeClock
	publisher *recordingPublisher
	notifier  *recordingNotifier

	users     *UserService
	campaigns *CampaignService
	donations *DonationService
	ratings   *RatingService
	analytics *AnalyticsService
}

func newPlatform() *platform {
	store := newMemStore()
	clock := newFakeClock()
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}

	users := memUsers{store}
	campaigns := memCampaigns{store}
	donations := memDonations{store}

	p := &platform{
		store:     store,
		clock:     clock,
		publisher: pub,
		notifier:  notifier,
		users:     NewUserService(users, session.NewMemoryBlacklist()),
		campaigns: NewCampaignService(campaigns, users, notifier, pub),
		donations: NewDonationService(donations, campaigns, users, lock.NewKeyedMutex(), notifier, pub),
		ratings:   NewRatingService(campaigns, donations),
		analytics: NewAnalyticsService(campaigns, donations),
	}
	p.users.now = clock.Now
	p.campaigns.now = clock.Now
	p.donations.now = clock.Now
	p.ratings.now = clock.Now
	return p
}

// approvedCampaign 创建并审核通过一个活动
func (p *platform) approvedCampaign(t require.TestingT, creator *model.User, title string, target float64) *model.Campaign {
	ctx := context.Background()
	c, err := p.campaigns.Submit(ctx, creator.ID, SubmitCampaignInput{
		Title:        title,
		Description:  "description of " + title,
		TargetAmount: target,
		EndDate:      p.clock.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	c, err = p.campaigns.Approve(ctx, c.ID, 0)
	require.NoError(t, err)
	return c
}
