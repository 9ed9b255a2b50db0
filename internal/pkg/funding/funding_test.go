package funding

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/windwalker46/chipin/app/models"
	"github.com/windwalker46/chipin/internal/pkg/payments"
)

type fakeRepo struct {
	users         map[uint]*models.User
	pools         map[uint]*models.Pool
	contributions map[uint]*models.Contribution
	payments      map[uint]*models.ContributionPayment
	disputes      map[string]*models.Dispute
	webhookEvents map[string]*models.WebhookEvent
	audits        []models.AuditEvent
	nextID        uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[uint]*models.User),
		pools:         make(map[uint]*models.Pool),
		contributions: make(map[uint]*models.Contribution),
		payments:      make(map[uint]*models.ContributionPayment),
		disputes:      make(map[string]*models.Dispute),
		webhookEvents: make(map[string]*models.WebhookEvent),
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) Transact(fn func(Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) GetUserByID(id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) SaveUser(user *models.User) error {
	if user.ID == 0 {
		user.ID = f.id()
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeRepo) CreatePool(pool *models.Pool) error {
	pool.ID = f.id()
	pool.CreatedAt = time.Now()
	f.pools[pool.ID] = pool
	return nil
}

func (f *fakeRepo) GetPoolByID(id uint) (*models.Pool, error) {
	pool, ok := f.pools[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *pool
	return &copied, nil
}

func (f *fakeRepo) GetPoolByCode(publicCode string) (*models.Pool, error) {
	for _, pool := range f.pools {
		if pool.PublicCode == publicCode {
			copied := *pool
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListPoolsByOrganizer(organizerID uint) ([]models.Pool, error) {
	var out []models.Pool
	for _, pool := range f.pools {
		if pool.OrganizerID == organizerID {
			out = append(out, *pool)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListPoolsPastDeadline(now time.Time) ([]models.Pool, error) {
	var out []models.Pool
	for _, pool := range f.pools {
		sweepable := pool.Status == models.PoolStatusActive || pool.Status == models.PoolStatusRefunding
		if sweepable && !pool.DeadlineAt.After(now) {
			out = append(out, *pool)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetPoolStatus(poolID uint, fromStatus *string, toStatus string) (int64, error) {
	pool, ok := f.pools[poolID]
	if !ok {
		return 0, nil
	}
	if fromStatus != nil && pool.Status != *fromStatus {
		return 0, nil
	}
	pool.Status = toStatus
	now := time.Now()
	switch toStatus {
	case models.PoolStatusFunded:
		pool.FundedAt = &now
	case models.PoolStatusExpired:
		pool.ExpiredAt = &now
	case models.PoolStatusCanceled:
		pool.CanceledAt = &now
	}
	return 1, nil
}

func (f *fakeRepo) RecomputePoolCollected(poolID uint) (int64, error) {
	pool, ok := f.pools[poolID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	var collected int64
	for _, c := range f.contributions {
		if c.PoolID == poolID && c.Status == models.ContributionStatusSucceeded {
			collected += c.AmountCents
		}
	}
	pool.CollectedAmountCents = collected
	return collected, nil
}

func (f *fakeRepo) CreateContribution(c *models.Contribution) error {
	c.ID = f.id()
	c.CreatedAt = time.Now()
	f.contributions[c.ID] = c
	return nil
}

func (f *fakeRepo) GetContributionByID(id uint) (*models.Contribution, error) {
	c, ok := f.contributions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeRepo) findContribution(match func(*models.ContributionPayment) bool) (*models.Contribution, error) {
	for _, cp := range f.payments {
		if match(cp) {
			if c, ok := f.contributions[cp.ContributionID]; ok {
				copied := *c
				return &copied, nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindContributionByCheckoutSession(sessionID string) (*models.Contribution, error) {
	return f.findContribution(func(cp *models.ContributionPayment) bool {
		return sessionID != "" && cp.CheckoutSessionID == sessionID
	})
}

func (f *fakeRepo) FindContributionByPaymentIntent(paymentIntentID string) (*models.Contribution, error) {
	return f.findContribution(func(cp *models.ContributionPayment) bool {
		return paymentIntentID != "" && cp.PaymentIntentID == paymentIntentID
	})
}

func (f *fakeRepo) FindContributionByCharge(chargeID string) (*models.Contribution, error) {
	return f.findContribution(func(cp *models.ContributionPayment) bool {
		return chargeID != "" && cp.ChargeID == chargeID
	})
}

func (f *fakeRepo) MarkContributionStatus(contributionID uint, fromStatus *string, toStatus string) (int64, error) {
	c, ok := f.contributions[contributionID]
	if !ok {
		return 0, nil
	}
	if fromStatus != nil && c.Status != *fromStatus {
		return 0, nil
	}
	c.Status = toStatus
	now := time.Now()
	switch toStatus {
	case models.ContributionStatusSucceeded:
		c.PaidAt = &now
	case models.ContributionStatusRefunded:
		c.RefundedAt = &now
	}
	return 1, nil
}

func (f *fakeRepo) ListContributions(poolID uint) ([]models.Contribution, error) {
	var out []models.Contribution
	for _, c := range f.contributions {
		if c.PoolID == poolID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListSucceededContributions(poolID uint) ([]models.Contribution, error) {
	var out []models.Contribution
	for _, c := range f.contributions {
		if c.PoolID == poolID && c.Status == models.ContributionStatusSucceeded {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetContributionPayment(contributionID uint) (*models.ContributionPayment, error) {
	cp, ok := f.payments[contributionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *cp
	return &copied, nil
}

func (f *fakeRepo) UpsertContributionPayment(cp *models.ContributionPayment) error {
	existing, ok := f.payments[cp.ContributionID]
	if !ok {
		cp.ID = f.id()
		copied := *cp
		f.payments[cp.ContributionID] = &copied
		return nil
	}
	coalesce(&existing.ContributorEmail, cp.ContributorEmail)
	coalesce(&existing.CheckoutSessionID, cp.CheckoutSessionID)
	coalesce(&existing.PaymentIntentID, cp.PaymentIntentID)
	coalesce(&existing.ChargeID, cp.ChargeID)
	coalesce(&existing.RefundID, cp.RefundID)
	coalesce(&existing.TransferID, cp.TransferID)
	coalesce(&existing.DestinationAccountID, cp.DestinationAccountID)
	*cp = *existing
	return nil
}

func (f *fakeRepo) UpsertDispute(d *models.Dispute) error {
	if existing, ok := f.disputes[d.DisputeID]; ok {
		existing.Status = d.Status
		existing.Reason = d.Reason
		existing.AmountCents = d.AmountCents
		existing.Payload = d.Payload
		existing.ContributionID = d.ContributionID
		*d = *existing
		return nil
	}
	d.ID = f.id()
	copied := *d
	f.disputes[d.DisputeID] = &copied
	return nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(e *models.WebhookEvent) (bool, error) {
	if _, ok := f.webhookEvents[e.EventID]; ok {
		return false, nil
	}
	e.CreatedAt = time.Now()
	copied := *e
	f.webhookEvents[e.EventID] = &copied
	return true, nil
}

func (f *fakeRepo) MarkWebhookProcessed(eventID string, processingError string) error {
	e, ok := f.webhookEvents[eventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	return nil
}

func (f *fakeRepo) InsertAuditEvent(event *models.AuditEvent) error {
	event.ID = f.id()
	event.CreatedAt = time.Now()
	f.audits = append(f.audits, *event)
	return nil
}

func (f *fakeRepo) auditCount(eventType string) int {
	n := 0
	for _, e := range f.audits {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// fakeClient is an in-memory payments.Client. Refunds fail for any payment
// intent id listed in failRefunds; failIntents makes every payment intent
// lookup fail.
type fakeClient struct {
	sessions    []payments.CheckoutSessionInput
	refunds     []string
	failRefunds map[string]bool
	failIntents bool
	nextSession int
}

func newFakeClient() *fakeClient {
	return &fakeClient{failRefunds: make(map[string]bool)}
}

func (c *fakeClient) CreateCheckoutSession(_ context.Context, in payments.CheckoutSessionInput) (*payments.CheckoutSession, error) {
	c.sessions = append(c.sessions, in)
	c.nextSession++
	id := fmt.Sprintf("cs_test_%d", c.nextSession)
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

func (c *fakeClient) RetrievePaymentIntent(_ context.Context, paymentIntentID string) (*payments.PaymentIntent, error) {
	if c.failIntents {
		return nil, fmt.Errorf("intent lookup unavailable")
	}
	return &payments.PaymentIntent{ID: paymentIntentID, LatestChargeID: "ch_for_" + paymentIntentID}, nil
}

func (c *fakeClient) CreateRefund(_ context.Context, paymentIntentID string, _ map[string]string) (*payments.Refund, error) {
	if c.failRefunds[paymentIntentID] {
		return nil, fmt.Errorf("refund declined for %s", paymentIntentID)
	}
	c.refunds = append(c.refunds, paymentIntentID)
	return &payments.Refund{ID: "re_for_" + paymentIntentID}, nil
}

func (c *fakeClient) CreateConnectedAccount(_ context.Context, _ string, _ map[string]string) (*payments.Account, error) {
	return &payments.Account{ID: "acct_test"}, nil
}

func (c *fakeClient) RetrieveAccount(_ context.Context, accountID string) (*payments.Account, error) {
	return &payments.Account{ID: accountID, DetailsSubmitted: true, ChargesEnabled: true, PayoutsEnabled: true}, nil
}

func (c *fakeClient) CreateOnboardingLink(_ context.Context, accountID, _, _ string) (string, error) {
	return "https://connect.example.com/onboard/" + accountID, nil
}

func testConfig() Config {
	return Config{PlatformFeeBPS: 500, BaseURL: "https://chipin.test"}
}

// onboardedOrganizer seeds a user able to organize pools.
func onboardedOrganizer(repo *fakeRepo) *models.User {
	u := &models.User{
		Name:                     "Olive Organizer",
		Email:                    "olive@example.com",
		StripeAccountID:          "acct_olive",
		StripeOnboardingComplete: true,
		ChargesEnabled:           true,
		PayoutsEnabled:           true,
	}
	_ = repo.SaveUser(u)
	return u
}

func validPoolInput(organizerID uint, goal *int64) CreatePoolInput {
	return CreatePoolInput{
		OrganizerID:     organizerID,
		Title:           "Team dinner at Lucia's",
		RestaurantName:  "Lucia's",
		GoalAmountCents: goal,
		DeadlineAt:      time.Now().Add(48 * time.Hour),
		TipPercent:      18,
	}
}

func int64ptr(v int64) *int64 { return &v }
