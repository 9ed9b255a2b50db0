package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v78"
	"gorm.io/gorm"

	"github.com/windwalker46/chipin/app/models"
	"github.com/windwalker46/chipin/internal/pkg/payments"
)

// Reconciler applies verified processor webhook events to local state. Every
// event runs in one transaction covering the dedup ledger insert, the domain
// effects and the processed mark, so a crash can never leave an event marked
// done with its effects missing.
type Reconciler struct {
	repo     Repository
	payments payments.Client
}

func NewReconciler(repo Repository, client payments.Client) *Reconciler {
	return &Reconciler{repo: repo, payments: client}
}

func NewReconcilerFromDB(db *gorm.DB, client payments.Client) *Reconciler {
	return NewReconciler(NewRepository(db), client)
}

// ProcessEvent reconciles one verified event. Duplicate deliveries are
// detected by the ledger and succeed as no-ops. A returned error rolls the
// whole transaction back, leaving the delivery unrecorded so the processor
// retries it.
func (r *Reconciler) ProcessEvent(ctx context.Context, event stripe.Event) error {
	// Processor lookups happen before the transaction opens; a network call
	// must never run while the ledger row is locked.
	chargeID := r.lookupChargeID(ctx, event)

	return r.repo.Transact(func(tx Repository) error {
		inserted, err := tx.CreateWebhookEventIfNotExists(&models.WebhookEvent{
			EventID:  event.ID,
			Type:     string(event.Type),
			Livemode: event.Livemode,
			Payload:  string(event.Data.Raw),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		note, err := r.dispatch(tx, event, chargeID)
		if err != nil {
			return err
		}
		return tx.MarkWebhookProcessed(event.ID, note)
	})
}

// lookupChargeID resolves the charge behind a completed checkout session. The
// session payload carries only the intent id; the charge id needed for dispute
// correlation comes from the intent itself. Best effort: when the lookup
// fails, the dispute path still matches by payment intent.
func (r *Reconciler) lookupChargeID(ctx context.Context, event stripe.Event) string {
	if string(event.Type) != "checkout.session.completed" {
		return ""
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil || session.PaymentIntent == nil {
		return ""
	}
	intent, err := r.payments.RetrievePaymentIntent(ctx, session.PaymentIntent.ID)
	if err != nil {
		return ""
	}
	return intent.LatestChargeID
}

// dispatch routes one event to its handler. The returned note is recorded as
// the processing error without failing the event; it covers permanent
// conditions retrying cannot fix, like references to unknown contributions.
func (r *Reconciler) dispatch(tx Repository, event stripe.Event, chargeID string) (string, error) {
	switch string(event.Type) {
	case "checkout.session.completed":
		return r.handleCheckoutCompleted(tx, event, chargeID)
	case "charge.refunded":
		return r.handleChargeRefunded(tx, event)
	case "charge.dispute.created":
		return r.handleDisputeCreated(tx, event)
	default:
		// Unhandled types are ledgered and acknowledged so the processor
		// stops redelivering them.
		return "", nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(tx Repository, event stripe.Event, chargeID string) (string, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", fmt.Errorf("parse checkout session: %w", err)
	}

	contribution, err := resolveBySessionMetadata(tx, session.Metadata, session.ID)
	if err != nil {
		return "", err
	}
	if contribution == nil {
		return fmt.Sprintf("no contribution for checkout session %s", session.ID), nil
	}

	payment := &models.ContributionPayment{
		ContributionID:    contribution.ID,
		CheckoutSessionID: session.ID,
		ChargeID:          chargeID,
	}
	if session.CustomerDetails != nil {
		payment.ContributorEmail = session.CustomerDetails.Email
	}
	if session.PaymentIntent != nil {
		payment.PaymentIntentID = session.PaymentIntent.ID
	}
	if err := tx.UpsertContributionPayment(payment); err != nil {
		return "", err
	}

	from := models.ContributionStatusPending
	rows, err := tx.MarkContributionStatus(contribution.ID, &from, models.ContributionStatusSucceeded)
	if err != nil {
		return "", err
	}
	if rows > 0 {
		if err := tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType:     models.AuditObjectPool,
			ObjectID:       contribution.PoolID,
			ContributionID: &contribution.ID,
			EventType:      "contribution_succeeded",
			Metadata:       auditMetadata(map[string]interface{}{"amount_cents": contribution.AmountCents, "checkout_session_id": session.ID}),
		}); err != nil {
			return "", err
		}
	}

	return "", EvaluateGoalTx(tx, contribution.PoolID)
}

func (r *Reconciler) handleChargeRefunded(tx Repository, event stripe.Event) (string, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return "", fmt.Errorf("parse charge: %w", err)
	}

	contribution, err := resolveByChargeRefs(tx, charge.PaymentIntent, charge.ID)
	if err != nil {
		return "", err
	}
	if contribution == nil {
		return fmt.Sprintf("no contribution for refunded charge %s", charge.ID), nil
	}

	payment := &models.ContributionPayment{
		ContributionID: contribution.ID,
		ChargeID:       charge.ID,
	}
	if charge.PaymentIntent != nil {
		payment.PaymentIntentID = charge.PaymentIntent.ID
	}
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		payment.RefundID = charge.Refunds.Data[0].ID
	}
	if err := tx.UpsertContributionPayment(payment); err != nil {
		return "", err
	}

	from := models.ContributionStatusSucceeded
	rows, err := tx.MarkContributionStatus(contribution.ID, &from, models.ContributionStatusRefunded)
	if err != nil {
		return "", err
	}
	if rows > 0 {
		if err := tx.InsertAuditEvent(&models.AuditEvent{
			ObjectType:     models.AuditObjectPool,
			ObjectID:       contribution.PoolID,
			ContributionID: &contribution.ID,
			EventType:      "contribution_refunded",
			Metadata:       auditMetadata(map[string]interface{}{"amount_cents": contribution.AmountCents, "charge_id": charge.ID}),
		}); err != nil {
			return "", err
		}
	}

	_, err = tx.RecomputePoolCollected(contribution.PoolID)
	return "", err
}

func (r *Reconciler) handleDisputeCreated(tx Repository, event stripe.Event) (string, error) {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return "", fmt.Errorf("parse dispute: %w", err)
	}

	chargeID := ""
	if dispute.Charge != nil {
		chargeID = dispute.Charge.ID
	}
	contribution, err := resolveByChargeRefs(tx, dispute.PaymentIntent, chargeID)
	if err != nil {
		return "", err
	}

	row := &models.Dispute{
		DisputeID:   dispute.ID,
		AmountCents: dispute.Amount,
		Reason:      string(dispute.Reason),
		Status:      string(dispute.Status),
		Payload:     string(event.Data.Raw),
	}
	if contribution != nil {
		row.ContributionID = &contribution.ID
	}
	if err := tx.UpsertDispute(row); err != nil {
		return "", err
	}

	if contribution == nil {
		// Disputes for charges this application never created are still
		// mirrored for the operator to investigate.
		return fmt.Sprintf("no contribution for disputed charge %s", chargeID), nil
	}

	return "", tx.InsertAuditEvent(&models.AuditEvent{
		ObjectType:     models.AuditObjectPool,
		ObjectID:       contribution.PoolID,
		ContributionID: &contribution.ID,
		EventType:      "charge_dispute_created",
		Metadata:       auditMetadata(map[string]interface{}{"dispute_id": dispute.ID, "amount_cents": dispute.Amount}),
	})
}

// resolveBySessionMetadata finds the contribution for a checkout session,
// preferring the contribution_id planted in the session metadata and falling
// back to the stored session id.
func resolveBySessionMetadata(tx Repository, metadata map[string]string, sessionID string) (*models.Contribution, error) {
	if raw, ok := metadata["contribution_id"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			contribution, err := tx.GetContributionByID(uint(id))
			if err == nil {
				return contribution, nil
			}
			if err != gorm.ErrRecordNotFound {
				return nil, err
			}
		}
	}

	contribution, err := tx.FindContributionByCheckoutSession(sessionID)
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return contribution, err
}

// resolveByChargeRefs finds the contribution for a charge-level event,
// preferring the payment intent id and falling back to the charge id.
func resolveByChargeRefs(tx Repository, intent *stripe.PaymentIntent, chargeID string) (*models.Contribution, error) {
	if intent != nil && intent.ID != "" {
		contribution, err := tx.FindContributionByPaymentIntent(intent.ID)
		if err == nil {
			return contribution, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if chargeID != "" {
		contribution, err := tx.FindContributionByCharge(chargeID)
		if err == nil {
			return contribution, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	return nil, nil
}
