package payments

import (
	"context"
	"errors"

	stripe "github.com/stripe/stripe-go/v78"
	stripeclient "github.com/stripe/stripe-go/v78/client"

	"github.com/windwalker46/chipin/internal/pkg/env"
)

// CheckoutSessionInput describes one hosted checkout for a contribution.
type CheckoutSessionInput struct {
	AmountCents               int64
	ProductName               string
	ProductDescription        string
	SuccessURL                string
	CancelURL                 string
	ApplicationFeeCents       int64
	DestinationAccountID      string
	StatementDescriptorSuffix string
	Metadata                  map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type PaymentIntent struct {
	ID             string
	LatestChargeID string
}

type Refund struct {
	ID string
}

type Account struct {
	ID               string
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
}

// Client is the surface of the payment processor this application uses.
// The sweeper and reconciler depend on it so tests can substitute fakes.
type Client interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, paymentIntentID string, metadata map[string]string) (*Refund, error)
	CreateConnectedAccount(ctx context.Context, email string, metadata map[string]string) (*Account, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

type stripeClient struct {
	api *stripeclient.API
}

// NewStripeClient builds a Client over the Stripe SDK.
func NewStripeClient(secretKey string) (Client, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	api := &stripeclient.API{}
	api.Init(secretKey, nil)
	return &stripeClient{api: api}, nil
}

// NewStripeClientFromEnv builds a Client from STRIPE_SECRET_KEY.
func NewStripeClientFromEnv() (Client, error) {
	return NewStripeClient(env.GetEnv("STRIPE_SECRET_KEY", ""))
}

func (s *stripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		SubmitType: stripe.String(string(stripe.CheckoutSessionSubmitTypePay)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(in.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(in.ProductName),
						Description: stripe.String(in.ProductDescription),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(in.ApplicationFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(in.DestinationAccountID),
			},
			StatementDescriptorSuffix: stripe.String(in.StatementDescriptorSuffix),
			Metadata:                  in.Metadata,
		},
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeClient) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	pi, err := s.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	out := &PaymentIntent{ID: pi.ID}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	return out, nil
}

func (s *stripeClient) CreateRefund(ctx context.Context, paymentIntentID string, metadata map[string]string) (*Refund, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	ref, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, err
	}
	return &Refund{ID: ref.ID}, nil
}

func (s *stripeClient) CreateConnectedAccount(ctx context.Context, email string, metadata map[string]string) (*Account, error) {
	params := &stripe.AccountParams{
		Params:       stripe.Params{Context: ctx},
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String("US"),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	acct, err := s.api.Accounts.New(params)
	if err != nil {
		return nil, err
	}
	return accountFromStripe(acct), nil
}

func (s *stripeClient) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	acct, err := s.api.Accounts.GetByID(accountID, &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	return accountFromStripe(acct), nil
}

func (s *stripeClient) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	link, err := s.api.AccountLinks.New(&stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func accountFromStripe(acct *stripe.Account) *Account {
	return &Account{
		ID:               acct.ID,
		DetailsSubmitted: acct.DetailsSubmitted,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
}
