package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/windwalker46/chipin/app/models"
)

// SweepResult reports one sweep run over deadline-passed chips.
type SweepResult struct {
	Checked      int `json:"checked"`
	Transitioned int `json:"transitioned"`
}

// SweepChips expires every pending or active chip whose deadline has passed.
// The guarded transition keeps overlapping sweep runs harmless, and one
// failing chip does not block the rest.
func (s *Service) SweepChips(ctx context.Context, now time.Time) (SweepResult, error) {
	chips, err := s.repo.ListChipsPastDeadline(now)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Checked: len(chips)}
	for i := range chips {
		chip := &chips[i]
		expired := false
		err := s.repo.Transact(func(tx Repository) error {
			from := chip.Status
			rows, err := tx.SetChipStatus(chip.ID, &from, models.ChipStatusExpired)
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}
			expired = true
			return tx.InsertAuditEvent(&models.AuditEvent{
				ObjectType: models.AuditObjectChip,
				ObjectID:   chip.ID,
				EventType:  "chip_expired",
				Metadata:   auditMetadata(map[string]interface{}{"deadline_at": chip.DeadlineAt}),
			})
		})
		if err != nil {
			log.Printf("chip sweep: chip %d: %v", chip.ID, err)
			continue
		}
		if expired {
			result.Transitioned++
		}
	}
	return result, nil
}
