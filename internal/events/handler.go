package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-galeri/internal/obs"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

// SettledHandler consumes purchase.settled tasks. Delivery to the buyer is
// owned by an external system; the handler records the settlement for it.
type SettledHandler struct {
	Logger *zerolog.Logger
	// OnSettled is called for every decoded task when set.
	OnSettled func(ctx context.Context, s settlement.Settled) error
}

// ProcessTask implements asynq.Handler.
func (h SettledHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var s settlement.Settled
	if err := json.Unmarshal(t.Payload(), &s); err != nil {
		// a payload that cannot be decoded will never succeed
		return fmt.Errorf("events: decode settled task: %v: %w", err, asynq.SkipRetry)
	}
	if h.Logger != nil {
		h.Logger.Info().
			Str("external_id", s.ExternalID).
			Str("provider", s.Provider).
			Str("user_id", s.UserID).
			Int("photos", len(s.PhotoIDs)).
			Msg("purchase settled")
	}
	if h.OnSettled != nil {
		return h.OnSettled(ctx, s)
	}
	return nil
}

// CountSettled is an OnSettled hook that counts processed settlements per provider.
func CountSettled(_ context.Context, s settlement.Settled) error {
	if obs.SettledProcessedTotal != nil {
		obs.SettledProcessedTotal.WithLabelValues(strings.ToLower(s.Provider)).Inc()
	}
	return nil
}

// NewServeMux routes every task type the worker understands.
func NewServeMux(settled SettledHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypePurchaseSettled, settled)
	return mux
}
