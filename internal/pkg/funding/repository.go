package funding

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/windwalker46/chipin/app/models"
)

// Repository provides DB operations shared by the funding service, the
// webhook reconciler and the deadline sweeper.
type Repository interface {
	Transact(fn func(Repository) error) error

	GetUserByID(id uint) (*models.User, error)
	SaveUser(user *models.User) error

	CreatePool(pool *models.Pool) error
	GetPoolByID(id uint) (*models.Pool, error)
	GetPoolByCode(publicCode string) (*models.Pool, error)
	ListPoolsByOrganizer(organizerID uint) ([]models.Pool, error)
	ListPoolsPastDeadline(now time.Time) ([]models.Pool, error)
	SetPoolStatus(poolID uint, fromStatus *string, toStatus string) (int64, error)
	RecomputePoolCollected(poolID uint) (int64, error)

	CreateContribution(c *models.Contribution) error
	GetContributionByID(id uint) (*models.Contribution, error)
	FindContributionByCheckoutSession(sessionID string) (*models.Contribution, error)
	FindContributionByPaymentIntent(paymentIntentID string) (*models.Contribution, error)
	FindContributionByCharge(chargeID string) (*models.Contribution, error)
	MarkContributionStatus(contributionID uint, fromStatus *string, toStatus string) (int64, error)
	ListContributions(poolID uint) ([]models.Contribution, error)
	ListSucceededContributions(poolID uint) ([]models.Contribution, error)

	GetContributionPayment(contributionID uint) (*models.ContributionPayment, error)
	UpsertContributionPayment(cp *models.ContributionPayment) error

	UpsertDispute(d *models.Dispute) error

	CreateWebhookEventIfNotExists(e *models.WebhookEvent) (bool, error)
	MarkWebhookProcessed(eventID string, processingError string) error

	InsertAuditEvent(event *models.AuditEvent) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a funding repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Transact runs fn against a repository bound to one database transaction.
func (r *gormRepository) Transact(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SaveUser(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *gormRepository) CreatePool(pool *models.Pool) error {
	return r.db.Create(pool).Error
}

func (r *gormRepository) GetPoolByID(id uint) (*models.Pool, error) {
	var pool models.Pool
	if err := r.db.First(&pool, id).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *gormRepository) GetPoolByCode(publicCode string) (*models.Pool, error) {
	var pool models.Pool
	if err := r.db.Where("public_code = ?", publicCode).First(&pool).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *gormRepository) ListPoolsByOrganizer(organizerID uint) ([]models.Pool, error) {
	var pools []models.Pool
	err := r.db.Where("organizer_id = ?", organizerID).Order("created_at DESC").Find(&pools).Error
	return pools, err
}

// ListPoolsPastDeadline returns pools the sweep must resolve: still active or
// mid-refund with the deadline behind them.
func (r *gormRepository) ListPoolsPastDeadline(now time.Time) ([]models.Pool, error) {
	var pools []models.Pool
	err := r.db.
		Where("status IN ? AND deadline_at <= ?", []string{models.PoolStatusActive, models.PoolStatusRefunding}, now).
		Find(&pools).Error
	return pools, err
}

// SetPoolStatus performs the guarded transition; zero rows affected means the
// pool was no longer in fromStatus.
func (r *gormRepository) SetPoolStatus(poolID uint, fromStatus *string, toStatus string) (int64, error) {
	updates := map[string]interface{}{"status": toStatus}
	if col := models.PoolStatusTimestampColumn(toStatus); col != "" {
		updates[col] = time.Now()
	}

	tx := r.db.Model(&models.Pool{}).Where("id = ?", poolID)
	if fromStatus != nil {
		tx = tx.Where("status = ?", *fromStatus)
	}
	tx = tx.Updates(updates)
	return tx.RowsAffected, tx.Error
}

// RecomputePoolCollected sums the succeeded contributions and writes the
// result back. The denormalized column is never incremented in place.
func (r *gormRepository) RecomputePoolCollected(poolID uint) (int64, error) {
	var collected int64
	err := r.db.Model(&models.Contribution{}).
		Where("pool_id = ? AND status = ?", poolID, models.ContributionStatusSucceeded).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&collected).Error
	if err != nil {
		return 0, err
	}

	err = r.db.Model(&models.Pool{}).Where("id = ?", poolID).
		Update("collected_amount_cents", collected).Error
	return collected, err
}

func (r *gormRepository) CreateContribution(c *models.Contribution) error {
	return r.db.Create(c).Error
}

func (r *gormRepository) GetContributionByID(id uint) (*models.Contribution, error) {
	var c models.Contribution
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) findContributionByPaymentColumn(column, value string) (*models.Contribution, error) {
	var c models.Contribution
	err := r.db.
		Joins("JOIN contribution_payments ON contribution_payments.contribution_id = contributions.id").
		Where("contribution_payments."+column+" = ?", value).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) FindContributionByCheckoutSession(sessionID string) (*models.Contribution, error) {
	return r.findContributionByPaymentColumn("checkout_session_id", sessionID)
}

func (r *gormRepository) FindContributionByPaymentIntent(paymentIntentID string) (*models.Contribution, error) {
	return r.findContributionByPaymentColumn("payment_intent_id", paymentIntentID)
}

func (r *gormRepository) FindContributionByCharge(chargeID string) (*models.Contribution, error) {
	return r.findContributionByPaymentColumn("charge_id", chargeID)
}

// MarkContributionStatus performs the guarded status change, stamping paid_at
// or refunded_at for the statuses that carry a timestamp.
func (r *gormRepository) MarkContributionStatus(contributionID uint, fromStatus *string, toStatus string) (int64, error) {
	updates := map[string]interface{}{"status": toStatus}
	switch toStatus {
	case models.ContributionStatusSucceeded:
		updates["paid_at"] = time.Now()
	case models.ContributionStatusRefunded:
		updates["refunded_at"] = time.Now()
	}

	tx := r.db.Model(&models.Contribution{}).Where("id = ?", contributionID)
	if fromStatus != nil {
		tx = tx.Where("status = ?", *fromStatus)
	}
	tx = tx.Updates(updates)
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) ListContributions(poolID uint) ([]models.Contribution, error) {
	var contributions []models.Contribution
	err := r.db.Where("pool_id = ?", poolID).Order("created_at ASC").Find(&contributions).Error
	return contributions, err
}

func (r *gormRepository) ListSucceededContributions(poolID uint) ([]models.Contribution, error) {
	var contributions []models.Contribution
	err := r.db.
		Where("pool_id = ? AND status = ?", poolID, models.ContributionStatusSucceeded).
		Order("created_at ASC").
		Find(&contributions).Error
	return contributions, err
}

func (r *gormRepository) GetContributionPayment(contributionID uint) (*models.ContributionPayment, error) {
	var cp models.ContributionPayment
	if err := r.db.Where("contribution_id = ?", contributionID).First(&cp).Error; err != nil {
		return nil, err
	}
	return &cp, nil
}

// UpsertContributionPayment widens the correlation row: incoming non-empty
// fields win, existing values are never overwritten with blanks.
func (r *gormRepository) UpsertContributionPayment(cp *models.ContributionPayment) error {
	var existing models.ContributionPayment
	err := r.db.Where("contribution_id = ?", cp.ContributionID).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return r.db.Create(cp).Error
		}
		return err
	}

	coalesce(&existing.ContributorEmail, cp.ContributorEmail)
	coalesce(&existing.CheckoutSessionID, cp.CheckoutSessionID)
	coalesce(&existing.PaymentIntentID, cp.PaymentIntentID)
	coalesce(&existing.ChargeID, cp.ChargeID)
	coalesce(&existing.RefundID, cp.RefundID)
	coalesce(&existing.TransferID, cp.TransferID)
	coalesce(&existing.DestinationAccountID, cp.DestinationAccountID)

	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	*cp = existing
	return nil
}

func coalesce(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// UpsertDispute inserts or refreshes the mirror row for one processor dispute.
func (r *gormRepository) UpsertDispute(d *models.Dispute) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dispute_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "reason", "amount_cents", "payload", "contribution_id", "updated_at"}),
	}).Create(d).Error
}

// CreateWebhookEventIfNotExists inserts the ledger row for a processor event.
// Returns true when the row was inserted, false when the event id was already
// recorded and this delivery is a duplicate.
func (r *gormRepository) CreateWebhookEventIfNotExists(e *models.WebhookEvent) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) MarkWebhookProcessed(eventID string, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     time.Now(),
			"processing_error": processingError,
		}).Error
}

func (r *gormRepository) InsertAuditEvent(event *models.AuditEvent) error {
	return r.db.Create(event).Error
}
