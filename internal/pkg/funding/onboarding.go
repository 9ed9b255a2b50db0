package funding

import (
	"context"
	"errors"
	"strconv"

	"github.com/windwalker46/chipin/app/models"
)

var ErrNoConnectedAccount = errors.New("user has no connected account")

// StartOnboarding creates the user's connected account on first use and
// returns a fresh onboarding link. Re-running it for an onboarded user just
// issues another link; the processor shows a short confirmation instead.
func (s *Service) StartOnboarding(ctx context.Context, userID uint, refreshURL, returnURL string) (string, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", err
	}

	if user.StripeAccountID == "" {
		account, err := s.payments.CreateConnectedAccount(ctx, user.Email, map[string]string{
			"user_id": strconv.FormatUint(uint64(user.ID), 10),
		})
		if err != nil {
			return "", err
		}
		user.StripeAccountID = account.ID
		if err := s.repo.SaveUser(user); err != nil {
			return "", err
		}
	}

	return s.payments.CreateOnboardingLink(ctx, user.StripeAccountID, refreshURL, returnURL)
}

// RefreshOnboardingStatus pulls the connected account state and mirrors the
// capability flags onto the user. Called when the user returns from the
// hosted onboarding flow.
func (s *Service) RefreshOnboardingStatus(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user.StripeAccountID == "" {
		return nil, ErrNoConnectedAccount
	}

	account, err := s.payments.RetrieveAccount(ctx, user.StripeAccountID)
	if err != nil {
		return nil, err
	}

	user.StripeOnboardingComplete = account.DetailsSubmitted
	user.ChargesEnabled = account.ChargesEnabled
	user.PayoutsEnabled = account.PayoutsEnabled
	if err := s.repo.SaveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
