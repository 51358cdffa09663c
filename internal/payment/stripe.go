package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/noah-isme/backend-galeri/internal/cart"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

// StripeProviderName is the path segment of the Stripe provider.
const StripeProviderName = "stripe"

const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"

	metadataUserID = "user_id"
)

// Stripe verifies Stripe-Signature headers and decodes checkout session
// events. The checkout session id is the external id, so the completed and
// async-succeeded events of one payment settle once.
type Stripe struct {
	WebhookSecret string
	Tolerance     time.Duration
}

// Name implements Provider.
func (Stripe) Name() string { return StripeProviderName }

// SignatureHeader implements Provider.
func (Stripe) SignatureHeader() string { return "Stripe-Signature" }

// Verify implements settlement.Verifier.
func (s Stripe) Verify(payload []byte, signature string) error {
	secret := strings.TrimSpace(s.WebhookSecret)
	if secret == "" {
		return errors.New("stripe webhook secret not configured")
	}
	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, secret, tolerance); err != nil {
		return fmt.Errorf("%w: %v", settlement.ErrSignatureInvalid, err)
	}
	return nil
}

// Decode implements Provider. Events other than a paid checkout session
// return ErrIgnoredEvent.
func (Stripe) Decode(body []byte) (settlement.PaymentEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: event has no data", ErrMalformedPayload)
	}
	eventType := string(event.Type)
	if eventType != eventCheckoutCompleted && eventType != eventCheckoutAsyncSucceeded {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: checkout session: %v", ErrMalformedPayload, err)
	}
	// a completed session may still await an asynchronous payment method
	if eventType == eventCheckoutCompleted && session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: payment status %s", ErrIgnoredEvent, session.PaymentStatus)
	}
	if strings.TrimSpace(session.ID) == "" {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: checkout session id missing", ErrMalformedPayload)
	}

	userID := strings.TrimSpace(session.ClientReferenceID)
	if userID == "" {
		userID = strings.TrimSpace(session.Metadata[metadataUserID])
	}
	if userID == "" {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: checkout session has no buyer", ErrMalformedPayload)
	}
	snap, err := cart.DecodeMetadata(session.Metadata)
	if err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := snap.ValidateNonEmpty(); err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return settlement.PaymentEvent{
		Provider:   StripeProviderName,
		ExternalID: session.ID,
		UserID:     userID,
		Cart:       snap,
		RawPayload: body,
	}, nil
}

// CheckoutMetadata builds the session metadata that Decode expects back.
func CheckoutMetadata(userID string, snap cart.Snapshot) (map[string]string, error) {
	md, err := cart.EncodeMetadata(snap)
	if err != nil {
		return nil, err
	}
	md[metadataUserID] = strings.TrimSpace(userID)
	return md, nil
}
