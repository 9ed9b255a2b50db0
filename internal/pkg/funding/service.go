package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/windwalker46/chipin/app/models"
	"github.com/windwalker46/chipin/internal/pkg/env"
	"github.com/windwalker46/chipin/internal/pkg/payments"
	"github.com/windwalker46/chipin/internal/pkg/shortener"
)

const (
	MinContributionCents = 100
	MaxContributionCents = 1_000_000

	defaultPlatformFeeBPS = 500
)

var (
	ErrPoolClosed            = errors.New("pool is no longer accepting contributions")
	ErrNotOrganizer          = errors.New("only the pool organizer may do this")
	ErrOrganizerNotOnboarded = errors.New("organizer has not completed payout onboarding")
	ErrInvalidAmount         = errors.New("contribution amount is out of range")
	ErrInvalidGoal           = errors.New("goal amount must be positive")
	ErrInvalidDeadline       = errors.New("deadline must be between 15 minutes and 7 days from now")
	ErrTitleRequired         = errors.New("title is required")
	ErrNameRequired          = errors.New("contributor name is required")
	ErrPoolHasContributions  = errors.New("pool has succeeded contributions and cannot be canceled directly")
)

// Config carries the funding knobs read once at startup.
type Config struct {
	// PlatformFeeBPS is the application fee in basis points of each
	// contribution, truncated toward zero.
	PlatformFeeBPS int64
	// BaseURL is the public origin used to build checkout redirect URLs.
	BaseURL string
}

// ConfigFromEnv reads STRIPE_PLATFORM_FEE_BPS and APP_URL.
func ConfigFromEnv() Config {
	bps := int64(defaultPlatformFeeBPS)
	if raw := env.GetEnv("STRIPE_PLATFORM_FEE_BPS", ""); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed >= 0 {
			bps = parsed
		}
	}
	return Config{
		PlatformFeeBPS: bps,
		BaseURL:        strings.TrimRight(env.GetEnv("APP_URL", "http://localhost:3000"), "/"),
	}
}

// Service drives pools and contributions up to the point a hosted checkout is
// handed to the contributor. Everything after that arrives via webhooks.
type Service struct {
	repo     Repository
	payments payments.Client
	cfg      Config
}

func NewService(repo Repository, client payments.Client, cfg Config) *Service {
	return &Service{repo: repo, payments: client, cfg: cfg}
}

func NewServiceFromDB(db *gorm.DB, client payments.Client) *Service {
	return NewService(NewRepository(db), client, ConfigFromEnv())
}

type CreatePoolInput struct {
	OrganizerID     uint
	Title           string
	RestaurantName  string
	GoalAmountCents *int64
	DeadlineAt      time.Time
	TipPercent      int
}

// CreatePool creates a pool for a fully onboarded organizer. Pools without a
// goal amount collect open-ended until the deadline resolves them.
func (s *Service) CreatePool(ctx context.Context, in CreatePoolInput) (*models.Pool, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	window := time.Until(in.DeadlineAt)
	if window < models.ChipMinDeadlineWindow || window > models.ChipMaxDeadlineWindow {
		return nil, ErrInvalidDeadline
	}
	if in.GoalAmountCents != nil && *in.GoalAmountCents <= 0 {
		return nil, ErrInvalidGoal
	}

	organizer, err := s.repo.GetUserByID(in.OrganizerID)
	if err != nil {
		return nil, err
	}
	if !organizer.CanOrganizePools() {
		return nil, ErrOrganizerNotOnboarded
	}

	code, err := shortener.GeneratePublicCode()
	if err != nil {
		return nil, err
	}

	pool := &models.Pool{
		PublicCode:      code,
		OrganizerID:     in.OrganizerID,
		Title:           title,
		RestaurantName:  strings.TrimSpace(in.RestaurantName),
		GoalAmountCents: in.GoalAmountCents,
		DeadlineAt:      in.DeadlineAt,
		TipPercent:      in.TipPercent,
		Status:          models.PoolStatusActive,
	}
	if err := pool.Validate(); err != nil {
		return nil, err
	}

	err = s.repo.Transact(func(tx Repository) error {
		if err := tx.CreatePool(pool); err != nil {
			return err
		}
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType: models.AuditObjectPool,
			ObjectID:   pool.ID,
			EventType:  "pool_created",
			Metadata:   auditMetadata(map[string]interface{}{"organizer_id": in.OrganizerID}),
		})
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// PlatformFee truncates the basis-point fee for one contribution amount.
func (s *Service) PlatformFee(amountCents int64) int64 {
	return amountCents * s.cfg.PlatformFeeBPS / 10000
}

type ContributeInput struct {
	PoolID           uint
	ContributorName  string
	ContributorEmail string
	AmountCents      int64
}

// Contribute commits a pending contribution and opens a hosted checkout for
// it. The pending row exists before the processor is called so every webhook
// has something to reconcile against; abandoned checkouts simply leave it
// pending.
func (s *Service) Contribute(ctx context.Context, in ContributeInput) (*models.Contribution, string, error) {
	name := strings.TrimSpace(in.ContributorName)
	if name == "" {
		return nil, "", ErrNameRequired
	}
	if in.AmountCents < MinContributionCents || in.AmountCents > MaxContributionCents {
		return nil, "", ErrInvalidAmount
	}

	pool, err := s.repo.GetPoolByID(in.PoolID)
	if err != nil {
		return nil, "", err
	}
	if pool.Status != models.PoolStatusActive || !pool.DeadlineAt.After(time.Now()) {
		return nil, "", ErrPoolClosed
	}

	organizer, err := s.repo.GetUserByID(pool.OrganizerID)
	if err != nil {
		return nil, "", err
	}
	if !organizer.CanOrganizePools() {
		return nil, "", ErrOrganizerNotOnboarded
	}

	contribution := &models.Contribution{
		PoolID:           pool.ID,
		ContributorName:  name,
		AmountCents:      in.AmountCents,
		PlatformFeeCents: s.PlatformFee(in.AmountCents),
		Status:           models.ContributionStatusPending,
	}
	if err := s.repo.CreateContribution(contribution); err != nil {
		return nil, "", err
	}

	poolURL := fmt.Sprintf("%s/p/%s", s.cfg.BaseURL, pool.PublicCode)
	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionInput{
		AmountCents:               contribution.AmountCents,
		ProductName:               fmt.Sprintf("Contribution to %s", pool.Title),
		ProductDescription:        fmt.Sprintf("Group pool organized via %s", s.cfg.BaseURL),
		SuccessURL:                poolURL + "?checkout=success",
		CancelURL:                 poolURL + "?checkout=canceled",
		ApplicationFeeCents:       contribution.PlatformFeeCents,
		DestinationAccountID:      organizer.StripeAccountID,
		StatementDescriptorSuffix: "CHIPIN",
		Metadata: map[string]string{
			"contribution_id":  strconv.FormatUint(uint64(contribution.ID), 10),
			"pool_id":          strconv.FormatUint(uint64(pool.ID), 10),
			"pool_public_code": pool.PublicCode,
		},
	})
	if err != nil {
		return nil, "", err
	}

	err = s.repo.Transact(func(tx Repository) error {
		if err := tx.UpsertContributionPayment(&models.ContributionPayment{
			ContributionID:       contribution.ID,
			ContributorEmail:     strings.TrimSpace(in.ContributorEmail),
			CheckoutSessionID:    session.ID,
			DestinationAccountID: organizer.StripeAccountID,
		}); err != nil {
			return err
		}
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType:     models.AuditObjectPool,
			ObjectID:       pool.ID,
			ContributionID: &contribution.ID,
			EventType:      "checkout_session_created",
			Metadata:       auditMetadata(map[string]interface{}{"checkout_session_id": session.ID, "amount_cents": contribution.AmountCents}),
		})
	})
	if err != nil {
		return nil, "", err
	}

	return contribution, session.URL, nil
}

// EvaluateGoal recomputes the collected sum and funds the pool when the goal
// is reached. Idempotent through the guarded active→funded transition; pools
// without a goal are left for the deadline sweep.
func (s *Service) EvaluateGoal(ctx context.Context, poolID uint) error {
	return s.repo.Transact(func(tx Repository) error {
		return EvaluateGoalTx(tx, poolID)
	})
}

// EvaluateGoalTx is the transaction body of EvaluateGoal, exported so the
// reconciler can fold it into its own transaction.
func EvaluateGoalTx(tx Repository, poolID uint) error {
	collected, err := tx.RecomputePoolCollected(poolID)
	if err != nil {
		return err
	}

	pool, err := tx.GetPoolByID(poolID)
	if err != nil {
		return err
	}
	if pool.Status != models.PoolStatusActive || !pool.GoalMet(collected) {
		return nil
	}

	from := models.PoolStatusActive
	rows, err := tx.SetPoolStatus(poolID, &from, models.PoolStatusFunded)
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	return tx.InsertAuditEvent(&models.AuditEvent{
		ObjectType: models.AuditObjectPool,
		ObjectID:   poolID,
		EventType:  "pool_funded",
		Metadata:   auditMetadata(map[string]interface{}{"collected_amount_cents": collected}),
	})
}

// CancelPool is the organizer's active→canceled transition. Pools that have
// already collected money cannot be canceled directly; the deadline sweep is
// the refund path.
func (s *Service) CancelPool(ctx context.Context, poolID, actorID uint) (*models.Pool, error) {
	pool, err := s.repo.GetPoolByID(poolID)
	if err != nil {
		return nil, err
	}
	if pool.OrganizerID != actorID {
		return nil, ErrNotOrganizer
	}
	if !models.CanTransitionPool(pool.Status, models.PoolStatusCanceled) {
		return nil, fmt.Errorf("cannot cancel pool in status %s", pool.Status)
	}

	succeeded, err := s.repo.ListSucceededContributions(poolID)
	if err != nil {
		return nil, err
	}
	if len(succeeded) > 0 {
		return nil, ErrPoolHasContributions
	}

	err = s.repo.Transact(func(tx Repository) error {
		from := models.PoolStatusActive
		rows, err := tx.SetPoolStatus(poolID, &from, models.PoolStatusCanceled)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType: models.AuditObjectPool,
			ObjectID:   poolID,
			EventType:  "pool_canceled",
			Metadata:   auditMetadata(map[string]interface{}{"by": actorID}),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetPoolByID(poolID)
}

// GetPoolByCode loads a pool with its contributions.
func (s *Service) GetPoolByCode(ctx context.Context, publicCode string) (*models.Pool, []models.Contribution, error) {
	pool, err := s.repo.GetPoolByCode(publicCode)
	if err != nil {
		return nil, nil, err
	}
	contributions, err := s.repo.ListContributions(pool.ID)
	if err != nil {
		return nil, nil, err
	}
	return pool, contributions, nil
}

// ListOrganizerPools returns the pools a user organizes, newest first.
func (s *Service) ListOrganizerPools(ctx context.Context, organizerID uint) ([]models.Pool, error) {
	return s.repo.ListPoolsByOrganizer(organizerID)
}

func auditMetadata(m map[string]interface{}) string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
