package funding

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/windwalker46/chipin/app/models"
)

// SweepResult reports one sweep run: how many objects were examined and how
// many changed status.
type SweepResult struct {
	Checked      int `json:"checked"`
	Transitioned int `json:"transitioned"`
}

// SweepPools resolves every pool whose deadline has passed. Pools that met
// their goal are funded; pools that fell short enter refunding, get their
// succeeded contributions refunded one by one, and expire once none remain.
// A pool with refund failures stays refunding and is retried on the next
// sweep, refunding only the contributions still marked succeeded.
func (s *Service) SweepPools(ctx context.Context, now time.Time) (SweepResult, error) {
	pools, err := s.repo.ListPoolsPastDeadline(now)
	if err != nil {
		return SweepResult{}, err
	}

	// Sweep runs overlap with webhook processing and with each other; the
	// run id ties one run's log lines together.
	runID := uuid.NewString()
	result := SweepResult{Checked: len(pools)}
	for i := range pools {
		transitioned, err := s.sweepPool(ctx, &pools[i])
		if err != nil {
			// One broken pool must not block the rest of the sweep.
			log.Printf("pool sweep %s: pool %d: %v", runID, pools[i].ID, err)
			continue
		}
		if transitioned {
			result.Transitioned++
		}
	}
	if result.Checked > 0 {
		log.Printf("pool sweep %s: checked=%d transitioned=%d", runID, result.Checked, result.Transitioned)
	}
	return result, nil
}

// deadlineOutcome is the result of resolving one active pool at its deadline.
type deadlineOutcome int

const (
	// outcomeLost means both guarded transitions matched zero rows: the pool
	// left active between the candidate list and this step (webhook funded it
	// or the organizer canceled). Someone else owns it now.
	outcomeLost deadlineOutcome = iota
	outcomeFunded
	outcomeRefunding
)

func (s *Service) sweepPool(ctx context.Context, pool *models.Pool) (bool, error) {
	transitioned := false

	if pool.Status == models.PoolStatusActive {
		outcome, err := s.fundOrStartRefunding(pool)
		if err != nil {
			return transitioned, err
		}
		switch outcome {
		case outcomeFunded:
			return true, nil
		case outcomeRefunding:
			transitioned = true
			pool.Status = models.PoolStatusRefunding
		default:
			return false, nil
		}
	}

	if pool.Status != models.PoolStatusRefunding {
		return transitioned, nil
	}

	expired, err := s.refundAndMaybeExpire(ctx, pool)
	if err != nil {
		return transitioned, err
	}
	return transitioned || expired, nil
}

// fundOrStartRefunding resolves an active pool at its deadline: funded when
// the goal was met, refunding otherwise. A lost guard means the pool already
// left active; the caller must not touch its contributions.
func (s *Service) fundOrStartRefunding(pool *models.Pool) (deadlineOutcome, error) {
	outcome := outcomeLost
	err := s.repo.Transact(func(tx Repository) error {
		collected, err := tx.RecomputePoolCollected(pool.ID)
		if err != nil {
			return err
		}

		from := models.PoolStatusActive
		if pool.GoalMet(collected) {
			rows, err := tx.SetPoolStatus(pool.ID, &from, models.PoolStatusFunded)
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}
			outcome = outcomeFunded
			return tx.InsertAuditEvent(&models.AuditEvent{
				ObjectType: models.AuditObjectPool,
				ObjectID:   pool.ID,
				EventType:  "pool_funded_by_deadline",
				Metadata:   auditMetadata(map[string]interface{}{"collected_amount_cents": collected}),
			})
		}

		rows, err := tx.SetPoolStatus(pool.ID, &from, models.PoolStatusRefunding)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		outcome = outcomeRefunding
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType: models.AuditObjectPool,
			ObjectID:   pool.ID,
			EventType:  "pool_refunding_started",
			Metadata:   auditMetadata(map[string]interface{}{"collected_amount_cents": collected}),
		})
	})
	return outcome, err
}

// refundAndMaybeExpire refunds the still-succeeded contributions of a
// refunding pool and expires it once every one is refunded. Individual refund
// failures are logged and left for the next sweep. Returns true when the pool
// reached expired.
func (s *Service) refundAndMaybeExpire(ctx context.Context, pool *models.Pool) (bool, error) {
	succeeded, err := s.repo.ListSucceededContributions(pool.ID)
	if err != nil {
		return false, err
	}

	remaining := 0
	for i := range succeeded {
		if err := s.refundContribution(ctx, pool, &succeeded[i]); err != nil {
			log.Printf("pool sweep: refund contribution %d: %v", succeeded[i].ID, err)
			remaining++
		}
	}
	if remaining > 0 {
		return false, nil
	}

	expired := false
	err = s.repo.Transact(func(tx Repository) error {
		from := models.PoolStatusRefunding
		rows, err := tx.SetPoolStatus(pool.ID, &from, models.PoolStatusExpired)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		expired = true
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType: models.AuditObjectPool,
			ObjectID:   pool.ID,
			EventType:  "pool_expired_and_refunded",
			Metadata:   auditMetadata(map[string]interface{}{"refunded_contributions": len(succeeded)}),
		})
	})
	return expired, err
}

func (s *Service) refundContribution(ctx context.Context, pool *models.Pool, contribution *models.Contribution) error {
	payment, err := s.repo.GetContributionPayment(contribution.ID)
	if err != nil {
		return err
	}

	refund, err := s.payments.CreateRefund(ctx, payment.PaymentIntentID, map[string]string{
		"contribution_id": strconv.FormatUint(uint64(contribution.ID), 10),
		"pool_id":         strconv.FormatUint(uint64(pool.ID), 10),
		"reason":          "pool_deadline_unmet",
	})
	if err != nil {
		return err
	}

	// The charge.refunded webhook also lands here eventually; the guarded
	// transition makes whichever side runs second a no-op.
	return s.repo.Transact(func(tx Repository) error {
		if err := tx.UpsertContributionPayment(&models.ContributionPayment{
			ContributionID: contribution.ID,
			RefundID:       refund.ID,
		}); err != nil {
			return err
		}

		from := models.ContributionStatusSucceeded
		rows, err := tx.MarkContributionStatus(contribution.ID, &from, models.ContributionStatusRefunded)
		if err != nil {
			return err
		}
		if _, err := tx.RecomputePoolCollected(pool.ID); err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		return tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType:     models.AuditObjectPool,
			ObjectID:       pool.ID,
			ContributionID: &contribution.ID,
			EventType:      "contribution_refunded",
			Metadata:       auditMetadata(map[string]interface{}{"amount_cents": contribution.AmountCents, "refund_id": refund.ID}),
		})
	})
}
