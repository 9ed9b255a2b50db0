package payments

import (
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// VerifyWebhookSignature checks the Stripe-Signature header against the
// endpoint secret and returns the parsed event. An error means the payload
// must not be processed. The endpoint may be pinned to a different API
// version than the SDK; that mismatch is not a signature failure.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signatureHeader, webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
