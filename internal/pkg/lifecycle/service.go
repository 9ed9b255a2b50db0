package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/windwalker46/chipin/app/models"
	"github.com/windwalker46/chipin/internal/pkg/shortener"
)

var (
	ErrChipClosed        = errors.New("chip is no longer open")
	ErrNotCreator        = errors.New("only the chip creator may do this")
	ErrDisplayNameTaken  = errors.New("display name is already taken on this chip")
	ErrInvalidDeadline   = errors.New("deadline must be between 15 minutes and 7 days from now")
	ErrInvalidThreshold  = errors.New("threshold must be between 1 and 100")
	ErrTitleRequired     = errors.New("title is required")
	ErrDisplayNameNeeded = errors.New("display name is required")
)

// Service drives the chip lifecycle: creation, joins, threshold activation,
// objective toggles and owner transitions.
type Service struct {
	repo Repository
}

// NewService creates a lifecycle service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a lifecycle service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

type ObjectiveInput struct {
	Title       string
	Description string
}

type CreateChipInput struct {
	CreatorID          uint
	CreatorDisplayName string
	Title              string
	Description        string
	ThresholdCount     int
	DeadlineAt         time.Time
	IsPrivate          bool
	Objectives         []ObjectiveInput
}

// CreateChip creates the chip tree in one transaction: the chip itself, the
// creator as first participant, and up to five seeded objectives. The
// threshold is evaluated immediately so a threshold of one activates at
// creation.
func (s *Service) CreateChip(ctx context.Context, in CreateChipInput) (*models.Chip, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if in.ThresholdCount < models.ChipMinThreshold || in.ThresholdCount > models.ChipMaxThreshold {
		return nil, ErrInvalidThreshold
	}
	window := time.Until(in.DeadlineAt)
	if window < models.ChipMinDeadlineWindow || window > models.ChipMaxDeadlineWindow {
		return nil, ErrInvalidDeadline
	}
	creatorName := strings.TrimSpace(in.CreatorDisplayName)
	if creatorName == "" {
		return nil, ErrDisplayNameNeeded
	}

	code, err := shortener.GeneratePublicCode()
	if err != nil {
		return nil, err
	}

	chip := &models.Chip{
		PublicCode:     code,
		CreatorID:      in.CreatorID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		ThresholdCount: in.ThresholdCount,
		DeadlineAt:     in.DeadlineAt,
		IsPrivate:      in.IsPrivate,
		Status:         models.ChipStatusPending,
	}
	if err := chip.Validate(); err != nil {
		return nil, err
	}

	err = s.repo.Transact(func(tx Repository) error {
		if err := tx.CreateChip(chip); err != nil {
			return err
		}

		creatorID := in.CreatorID
		creator := &models.ChipParticipant{
			ChipID:      chip.ID,
			UserID:      &creatorID,
			DisplayName: creatorName,
			IsCreator:   true,
		}
		if err := tx.CreateParticipant(creator); err != nil {
			return err
		}

		order := 0
		for _, o := range in.Objectives {
			objTitle := strings.TrimSpace(o.Title)
			if objTitle == "" {
				continue
			}
			if order >= models.ChipMaxObjectives {
				break
			}
			// Assigning seeded objectives to the creator lets toggles work
			// immediately after creation.
			obj := &models.ChipObjective{
				ChipID:                chip.ID,
				Title:                 objTitle,
				Description:           strings.TrimSpace(o.Description),
				SortOrder:             order,
				AssignedParticipantID: &creator.ID,
			}
			if err := tx.CreateObjective(obj); err != nil {
				return err
			}
			order++
		}

		if err := s.evaluateThreshold(tx, chip.ID); err != nil {
			return err
		}

		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType: models.AuditObjectChip,
			ObjectID:   chip.ID,
			EventType:  "chip_created",
			Metadata:   auditMetadata(map[string]interface{}{"by": in.CreatorID}),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.GetChipByID(chip.ID)
}

// JoinChip adds a participant (logged-in or guest) and evaluates the
// activation threshold. Joining twice coalesces to the existing row: by user
// id for members, by case-insensitive display name for guests.
func (s *Service) JoinChip(ctx context.Context, chipID uint, userID *uint, displayName string) (*models.ChipParticipant, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, ErrDisplayNameNeeded
	}

	var joined *models.ChipParticipant
	err := s.repo.Transact(func(tx Repository) error {
		// Status is read inside the transaction so a chip going terminal
		// between request parsing and the write cannot accept a join.
		chip, err := tx.GetChipByID(chipID)
		if err != nil {
			return err
		}
		if !chip.IsOpen() {
			return ErrChipClosed
		}

		existing, err := s.findParticipant(tx, chipID, userID, name)
		if err != nil {
			return err
		}

		if existing == nil {
			p := &models.ChipParticipant{
				ChipID:      chipID,
				UserID:      userID,
				DisplayName: name,
			}
			if err := tx.CreateParticipant(p); err != nil {
				// A concurrent join may have won the unique index. Re-read
				// and coalesce; anything else is a real failure.
				raced, lookupErr := s.findParticipant(tx, chipID, userID, name)
				if lookupErr != nil || raced == nil {
					return err
				}
				existing = raced
			} else {
				existing = p

				if err := tx.InsertAuditEvent(&models.AuditEvent{
					ObjectType: models.AuditObjectChip,
					ObjectID:   chipID,
					EventType:  "participant_joined",
					Metadata:   auditMetadata(map[string]interface{}{"participant_id": p.ID, "display_name": name}),
				}); err != nil {
					return err
				}
			}
		}
		joined = existing

		return s.evaluateThreshold(tx, chipID)
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

func (s *Service) findParticipant(tx Repository, chipID uint, userID *uint, name string) (*models.ChipParticipant, error) {
	var (
		existing *models.ChipParticipant
		err      error
	)
	if userID != nil {
		existing, err = tx.GetParticipantByUser(chipID, *userID)
	} else {
		existing, err = tx.GetParticipantByName(chipID, name)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return existing, nil
}

// EvaluateThreshold recomputes the participant aggregate and activates the
// chip when the threshold is met. Safe to call repeatedly: the guarded
// pending→active transition makes the second call a no-op.
func (s *Service) EvaluateThreshold(ctx context.Context, chipID uint) error {
	return s.repo.Transact(func(tx Repository) error {
		return s.evaluateThreshold(tx, chipID)
	})
}

func (s *Service) evaluateThreshold(tx Repository, chipID uint) error {
	count, err := tx.RefreshChipStats(chipID)
	if err != nil {
		return err
	}

	chip, err := tx.GetChipByID(chipID)
	if err != nil {
		return err
	}
	if chip.Status != models.ChipStatusPending || count < chip.ThresholdCount {
		return nil
	}

	from := models.ChipStatusPending
	rows, err := tx.SetChipStatus(chipID, &from, models.ChipStatusActive)
	if err != nil {
		return err
	}
	if rows == 0 {
		// Lost the race to a concurrent activation; nothing left to do.
		return nil
	}

	return tx.InsertAuditEvent(&models.AuditEvent{
		ObjectType: models.AuditObjectChip,
		ObjectID:   chipID,
		EventType:  "chip_activated",
		Metadata:   auditMetadata(map[string]interface{}{"participant_count": count, "threshold": chip.ThresholdCount}),
	})
}

// ToggleObjective flips one objective's completion for the acting
// participant. The checklist is shared: anyone allowed to toggle may also
// undo someone else's completion. Afterwards the completion rollup is
// recomputed; it never feeds back into the chip status.
func (s *Service) ToggleObjective(ctx context.Context, chipID, objectiveID, participantID uint) (*models.ChipObjective, error) {
	var toggled *models.ChipObjective
	err := s.repo.Transact(func(tx Repository) error {
		chip, err := tx.GetChipByID(chipID)
		if err != nil {
			return err
		}
		if !chip.IsOpen() {
			return ErrChipClosed
		}

		if _, err := tx.GetParticipantByID(chipID, participantID); err != nil {
			return err
		}

		obj, err := tx.GetObjective(chipID, objectiveID)
		if err != nil {
			return err
		}

		var completer *uint
		if !obj.IsCompleted() {
			completer = &participantID
		}
		if err := tx.SetObjectiveCompletion(chipID, objectiveID, completer); err != nil {
			return err
		}

		if _, _, err := tx.RefreshChipCompletion(chipID); err != nil {
			return err
		}

		toggled, err = tx.GetObjective(chipID, objectiveID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}

// CompleteChip is the owner's active→completed transition.
func (s *Service) CompleteChip(ctx context.Context, chipID, actorID uint) (*models.Chip, error) {
	return s.ownerTransition(ctx, chipID, actorID, models.ChipStatusCompleted, "chip_completed")
}

// CancelChip is the owner's pending/active→canceled transition.
func (s *Service) CancelChip(ctx context.Context, chipID, actorID uint) (*models.Chip, error) {
	return s.ownerTransition(ctx, chipID, actorID, models.ChipStatusCanceled, "chip_canceled")
}

func (s *Service) ownerTransition(ctx context.Context, chipID, actorID uint, toStatus, eventType string) (*models.Chip, error) {
	chip, err := s.repo.GetChipByID(chipID)
	if err != nil {
		return nil, err
	}
	if chip.CreatorID != actorID {
		return nil, ErrNotCreator
	}
	if !models.CanTransitionChip(chip.Status, toStatus) {
		return nil, fmt.Errorf("cannot move chip from %s to %s", chip.Status, toStatus)
	}

	err = s.repo.Transact(func(tx Repository) error {
		from := chip.Status
		rows, err := tx.SetChipStatus(chipID, &from, toStatus)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Someone else transitioned first; the re-read below reports
			// whatever state won.
			return nil
		}
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType: models.AuditObjectChip,
			ObjectID:   chipID,
			EventType:  eventType,
			Metadata:   auditMetadata(map[string]interface{}{"by": actorID}),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.GetChipByID(chipID)
}

// GetChipByCode loads a chip with its participants and objectives.
func (s *Service) GetChipByCode(ctx context.Context, publicCode string) (*models.Chip, []models.ChipParticipant, []models.ChipObjective, error) {
	chip, err := s.repo.GetChipByCode(publicCode)
	if err != nil {
		return nil, nil, nil, err
	}
	participants, err := s.repo.ListParticipants(chip.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	objectives, err := s.repo.ListObjectives(chip.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return chip, participants, objectives, nil
}

// ListCreatorChips returns the chips a user organizes, newest first.
func (s *Service) ListCreatorChips(ctx context.Context, creatorID uint) ([]models.Chip, error) {
	return s.repo.ListChipsByCreator(creatorID)
}

func auditMetadata(m map[string]interface{}) string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
