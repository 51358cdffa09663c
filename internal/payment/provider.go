package payment

import (
	"errors"

	"github.com/noah-isme/backend-galeri/internal/settlement"
)

var (
	// ErrMalformedPayload reports a webhook body that cannot be decoded into a payment event.
	ErrMalformedPayload = errors.New("payment: malformed payload")
	// ErrIgnoredEvent reports a well-formed notification that does not confirm a payment.
	ErrIgnoredEvent = errors.New("payment: event ignored")
)

// Provider abstracts the webhook surface of an upstream payment provider.
type Provider interface {
	settlement.Verifier
	// Name is the path segment and verifier key of the provider.
	Name() string
	// SignatureHeader names the request header carrying the signature.
	SignatureHeader() string
	// Decode turns a raw body into a payment event. It does not check the signature.
	Decode(body []byte) (settlement.PaymentEvent, error)
}

// Verifiers indexes providers by name for the reconciler.
func Verifiers(providers ...Provider) map[string]settlement.Verifier {
	out := make(map[string]settlement.Verifier, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		out[p.Name()] = p
	}
	return out
}
