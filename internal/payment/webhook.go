package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-galeri/internal/common"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

const defaultMaxBodyBytes = 1 << 20

// Settler settles decoded payment events.
type Settler interface {
	Settle(ctx context.Context, ev settlement.PaymentEvent) settlement.Result
}

// Webhook handles payment provider callbacks and maps settlement outcomes to
// status codes the provider understands.
type Webhook struct {
	Providers    map[string]Provider
	Settler      Settler
	MaxBodyBytes int64
	Logger       *zerolog.Logger
}

// NewWebhook indexes providers by name.
func NewWebhook(settler Settler, logger *zerolog.Logger, providers ...Provider) *Webhook {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}
	return &Webhook{Providers: byName, Settler: settler, Logger: logger}
}

// Handle processes a callback for the provider named in the path.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Settler == nil || len(h.Providers) == 0 {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	signature := strings.TrimSpace(r.Header.Get(provider.SignatureHeader()))

	ev, err := provider.Decode(body)
	switch {
	case errors.Is(err, ErrIgnoredEvent):
		// acknowledge only authentic notifications
		if verr := provider.Verify(body, signature); verr != nil {
			common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		h.logger().Debug().Str("provider", providerKey).Str("reason", err.Error()).Msg("payment webhook ignored")
		common.Data(w, http.StatusOK, map[string]any{"ignored": true})
		return
	case err != nil:
		h.logger().Warn().Err(err).Str("provider", providerKey).Msg("payment webhook malformed")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "malformed payment event", nil)
		return
	}
	ev.Provider = provider.Name()
	ev.Signature = signature

	res := h.Settler.Settle(r.Context(), ev)
	status, code := StatusFor(res.Outcome)
	switch res.Outcome {
	case settlement.OutcomeCommitted, settlement.OutcomeSkipped:
		common.Data(w, status, map[string]any{
			"externalId":   res.ExternalID,
			"outcome":      res.Outcome,
			"created":      len(res.Created),
			"skippedItems": len(res.SkippedItems),
		})
	case settlement.OutcomeRejected:
		common.JSONError(w, status, code, "payment event rejected", nil)
	default:
		common.JSONError(w, status, code, "settlement failed, retry later", nil)
	}
}

// StatusFor maps a settlement outcome to an HTTP status and error code.
func StatusFor(outcome settlement.Outcome) (int, string) {
	switch outcome {
	case settlement.OutcomeCommitted, settlement.OutcomeSkipped:
		return http.StatusOK, ""
	case settlement.OutcomeRejected:
		return http.StatusUnauthorized, "PAYMENT_EVENT_REJECTED"
	default:
		return http.StatusServiceUnavailable, "SETTLEMENT_RETRYABLE"
	}
}

func (h *Webhook) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
