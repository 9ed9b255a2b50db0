package lifecycle

import (
	"time"

	"gorm.io/gorm"

	"github.com/windwalker46/chipin/app/models"
)

// Repository provides DB operations used by the chip lifecycle service.
type Repository interface {
	Transact(fn func(Repository) error) error

	CreateChip(chip *models.Chip) error
	GetChipByID(id uint) (*models.Chip, error)
	GetChipByCode(publicCode string) (*models.Chip, error)
	ListChipsByCreator(creatorID uint) ([]models.Chip, error)
	ListChipsPastDeadline(now time.Time) ([]models.Chip, error)
	SetChipStatus(chipID uint, fromStatus *string, toStatus string) (int64, error)
	RefreshChipStats(chipID uint) (int, error)
	RefreshChipCompletion(chipID uint) (completed int, total int, err error)

	CreateParticipant(p *models.ChipParticipant) error
	GetParticipantByID(chipID, participantID uint) (*models.ChipParticipant, error)
	GetParticipantByUser(chipID, userID uint) (*models.ChipParticipant, error)
	GetParticipantByName(chipID uint, displayName string) (*models.ChipParticipant, error)
	ListParticipants(chipID uint) ([]models.ChipParticipant, error)

	CreateObjective(o *models.ChipObjective) error
	GetObjective(chipID, objectiveID uint) (*models.ChipObjective, error)
	ListObjectives(chipID uint) ([]models.ChipObjective, error)
	SetObjectiveCompletion(chipID, objectiveID uint, completerID *uint) error

	InsertAuditEvent(event *models.AuditEvent) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a chip lifecycle repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Transact runs fn against a repository bound to one database transaction.
func (r *gormRepository) Transact(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateChip(chip *models.Chip) error {
	return r.db.Create(chip).Error
}

func (r *gormRepository) GetChipByID(id uint) (*models.Chip, error) {
	var chip models.Chip
	if err := r.db.First(&chip, id).Error; err != nil {
		return nil, err
	}
	return &chip, nil
}

func (r *gormRepository) GetChipByCode(publicCode string) (*models.Chip, error) {
	var chip models.Chip
	if err := r.db.Where("public_code = ?", publicCode).First(&chip).Error; err != nil {
		return nil, err
	}
	return &chip, nil
}

func (r *gormRepository) ListChipsByCreator(creatorID uint) ([]models.Chip, error) {
	var chips []models.Chip
	err := r.db.Where("creator_id = ?", creatorID).Order("created_at DESC").Find(&chips).Error
	return chips, err
}

func (r *gormRepository) ListChipsPastDeadline(now time.Time) ([]models.Chip, error) {
	var chips []models.Chip
	err := r.db.
		Where("status IN ? AND deadline_at <= ?", []string{models.ChipStatusPending, models.ChipStatusActive}, now).
		Find(&chips).Error
	return chips, err
}

// SetChipStatus performs the guarded transition. With a non-nil fromStatus the
// update only matches rows still in that status; zero rows affected means the
// race was lost and is reported, not treated as an error.
func (r *gormRepository) SetChipStatus(chipID uint, fromStatus *string, toStatus string) (int64, error) {
	updates := map[string]interface{}{"status": toStatus}
	if col := models.ChipStatusTimestampColumn(toStatus); col != "" {
		updates[col] = time.Now()
	}

	tx := r.db.Model(&models.Chip{}).Where("id = ?", chipID)
	if fromStatus != nil {
		tx = tx.Where("status = ?", *fromStatus)
	}
	tx = tx.Updates(updates)
	return tx.RowsAffected, tx.Error
}

// RefreshChipStats recomputes the denormalized counters from source rows.
// Counts are never incremented in place; that would drift under concurrent
// joins.
func (r *gormRepository) RefreshChipStats(chipID uint) (int, error) {
	var participants int64
	if err := r.db.Model(&models.ChipParticipant{}).Where("chip_id = ?", chipID).Count(&participants).Error; err != nil {
		return 0, err
	}
	var objectives int64
	if err := r.db.Model(&models.ChipObjective{}).Where("chip_id = ?", chipID).Count(&objectives).Error; err != nil {
		return 0, err
	}

	err := r.db.Model(&models.Chip{}).Where("id = ?", chipID).Updates(map[string]interface{}{
		"participant_count": participants,
		"objective_count":   objectives,
	}).Error
	return int(participants), err
}

func (r *gormRepository) RefreshChipCompletion(chipID uint) (int, int, error) {
	var completed, total int64
	if err := r.db.Model(&models.ChipObjective{}).
		Where("chip_id = ? AND completed_by_participant_id IS NOT NULL", chipID).
		Count(&completed).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.Model(&models.ChipObjective{}).Where("chip_id = ?", chipID).Count(&total).Error; err != nil {
		return 0, 0, err
	}

	err := r.db.Model(&models.Chip{}).Where("id = ?", chipID).Updates(map[string]interface{}{
		"completed_objective_count": completed,
		"objective_count":           total,
	}).Error
	return int(completed), int(total), err
}

func (r *gormRepository) CreateParticipant(p *models.ChipParticipant) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetParticipantByID(chipID, participantID uint) (*models.ChipParticipant, error) {
	var p models.ChipParticipant
	if err := r.db.Where("chip_id = ? AND id = ?", chipID, participantID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetParticipantByUser(chipID, userID uint) (*models.ChipParticipant, error) {
	var p models.ChipParticipant
	if err := r.db.Where("chip_id = ? AND user_id = ?", chipID, userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetParticipantByName(chipID uint, displayName string) (*models.ChipParticipant, error) {
	var p models.ChipParticipant
	if err := r.db.Where("chip_id = ? AND LOWER(display_name) = LOWER(?)", chipID, displayName).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListParticipants(chipID uint) ([]models.ChipParticipant, error) {
	var participants []models.ChipParticipant
	err := r.db.Where("chip_id = ?", chipID).Order("joined_at ASC").Find(&participants).Error
	return participants, err
}

func (r *gormRepository) CreateObjective(o *models.ChipObjective) error {
	return r.db.Create(o).Error
}

func (r *gormRepository) GetObjective(chipID, objectiveID uint) (*models.ChipObjective, error) {
	var o models.ChipObjective
	if err := r.db.Where("chip_id = ? AND id = ?", chipID, objectiveID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *gormRepository) ListObjectives(chipID uint) ([]models.ChipObjective, error) {
	var objectives []models.ChipObjective
	err := r.db.Where("chip_id = ?", chipID).Order("sort_order ASC, created_at ASC").Find(&objectives).Error
	return objectives, err
}

// SetObjectiveCompletion writes both completion fields in one statement so
// they can never diverge: a nil completer clears the timestamp, a non-nil
// completer stamps it.
func (r *gormRepository) SetObjectiveCompletion(chipID, objectiveID uint, completerID *uint) error {
	updates := map[string]interface{}{
		"completed_by_participant_id": completerID,
		"completed_at":                nil,
	}
	if completerID != nil {
		updates["completed_at"] = time.Now()
	}
	return r.db.Model(&models.ChipObjective{}).
		Where("id = ? AND chip_id = ?", objectiveID, chipID).
		Updates(updates).Error
}

func (r *gormRepository) InsertAuditEvent(event *models.AuditEvent) error {
	return r.db.Create(event).Error
}
