package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-galeri/internal/cart"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

// HMACProviderName is the path segment of the generic signed-JSON provider.
const HMACProviderName = "hmac"

var validate = validator.New(validator.WithRequiredStructEnabled())

// HMAC verifies a hex HMAC-SHA256 of the raw body and decodes the generic
// payment event shape.
type HMAC struct {
	SecretKey string
}

type hmacPayload struct {
	ExternalID string `json:"externalId" validate:"required,max=255"`
	UserID     string `json:"userId" validate:"required,max=128"`
	Cart       struct {
		Items []cart.LineItem `json:"items"`
	} `json:"cart"`
}

// Name implements Provider.
func (HMAC) Name() string { return HMACProviderName }

// SignatureHeader implements Provider.
func (HMAC) SignatureHeader() string { return "X-Signature" }

// Verify implements settlement.Verifier.
func (h HMAC) Verify(payload []byte, signature string) error {
	expected := h.Sign(payload)
	provided := strings.ToLower(strings.TrimSpace(signature))
	if expected == "" {
		return errors.New("hmac secret not configured")
	}
	if provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return settlement.ErrSignatureInvalid
	}
	return nil
}

// Sign returns the hex signature for body, or "" without a secret.
func (h HMAC) Sign(body []byte) string {
	key := strings.TrimSpace(h.SecretKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Decode implements Provider.
func (HMAC) Decode(body []byte) (settlement.PaymentEvent, error) {
	var payload hmacPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	payload.ExternalID = strings.TrimSpace(payload.ExternalID)
	payload.UserID = strings.TrimSpace(payload.UserID)
	if err := validate.Struct(payload); err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	snap := cart.Snapshot{Items: payload.Cart.Items}
	if err := snap.ValidateNonEmpty(); err != nil {
		return settlement.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return settlement.PaymentEvent{
		Provider:   HMACProviderName,
		ExternalID: payload.ExternalID,
		UserID:     payload.UserID,
		Cart:       snap,
		RawPayload: body,
	}, nil
}
