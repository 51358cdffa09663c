package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-galeri/internal/cart"
	"github.com/noah-isme/backend-galeri/internal/obs"
	"github.com/noah-isme/backend-galeri/internal/purchase"
)

// DefaultTxTimeout bounds the ledger and purchase transaction when no timeout is configured.
const DefaultTxTimeout = 5 * time.Second

var (
	// ErrSignatureInvalid reports an event whose authenticity could not be established.
	ErrSignatureInvalid = errors.New("settlement: signature invalid")
	// ErrUnknownProvider reports an event from a provider with no configured verifier.
	ErrUnknownProvider = errors.New("settlement: unknown provider")
	// ErrInvalidEvent reports a verified event that is missing required fields.
	ErrInvalidEvent = errors.New("settlement: invalid event")
	// ErrNotConfigured is returned when the reconciler has no store.
	ErrNotConfigured = errors.New("settlement: reconciler not configured")
)

// Verifier checks the provider signature over the raw payload.
type Verifier interface {
	Verify(payload []byte, signature string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(payload []byte, signature string) error

// Verify implements Verifier.
func (f VerifierFunc) Verify(payload []byte, signature string) error { return f(payload, signature) }

// Settled is sent to the Notifier after a successful commit.
type Settled struct {
	ExternalID string    `json:"externalId"`
	Provider   string    `json:"provider"`
	UserID     string    `json:"userId"`
	PhotoIDs   []string  `json:"photoIds"`
	SettledAt  time.Time `json:"settledAt"`
}

// Notifier receives post-commit notifications. Failures never change the
// settlement outcome.
type Notifier interface {
	NotifySettled(ctx context.Context, s Settled) error
}

// PaymentEvent is a decoded payment confirmation.
type PaymentEvent struct {
	Provider   string
	ExternalID string
	UserID     string
	Cart       cart.Snapshot
	RawPayload []byte
	Signature  string
}

// Reconciler turns payment events into purchase records at most once per
// event and at most once per (user, photo).
type Reconciler struct {
	Store     purchase.TxRunner
	Verifiers map[string]Verifier
	TxTimeout time.Duration
	Notifier  Notifier
	Logger    *zerolog.Logger
	Now       func() time.Time
}

// Settle drives one event through the state machine. It never panics on bad
// input and always returns a terminal state or a retryable outcome.
func (r *Reconciler) Settle(ctx context.Context, ev PaymentEvent) Result {
	start := time.Now()
	res := Result{ExternalID: ev.ExternalID, Provider: ev.Provider}
	res.enter(StateReceived)

	ctx, span := otel.Tracer("settlement.Reconciler").Start(ctx, "Reconciler.Settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("settlement.provider", ev.Provider),
		attribute.String("settlement.external_id", ev.ExternalID),
		attribute.Int("settlement.items", len(ev.Cart.Items)),
	)
	defer func() {
		span.SetAttributes(attribute.String("settlement.outcome", string(res.Outcome)))
		if res.Err != nil && res.Outcome != OutcomeSkipped {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		r.observe(res, time.Since(start))
	}()

	if r == nil || r.Store == nil {
		res.retry(ErrNotConfigured)
		return res
	}

	if err := r.verify(ev); err != nil {
		res.reject(err)
		return res
	}
	res.enter(StateVerified)

	if err := validateEvent(ev); err != nil {
		res.reject(err)
		return res
	}

	created, skipped, duplicate, err := r.commit(ctx, ev)
	switch {
	case err != nil:
		res.retry(fmt.Errorf("settlement: commit %s: %w", ev.ExternalID, err))
		return res
	case duplicate:
		res.finish(StateSkipped, OutcomeSkipped)
		return res
	}
	res.enter(StateDeduped)
	res.enter(StateProcessing)
	res.Created = created
	res.SkippedItems = skipped
	res.finish(StateCommitted, OutcomeCommitted)

	r.notify(ctx, ev, created)
	return res
}

func (r *Reconciler) verify(ev PaymentEvent) error {
	v, ok := r.Verifiers[strings.ToLower(strings.TrimSpace(ev.Provider))]
	if !ok || v == nil {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, ev.Provider)
	}
	if err := v.Verify(ev.RawPayload, ev.Signature); err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	return nil
}

func validateEvent(ev PaymentEvent) error {
	if strings.TrimSpace(ev.ExternalID) == "" {
		return fmt.Errorf("%w: externalId is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidEvent)
	}
	if err := ev.Cart.ValidateNonEmpty(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// commit writes the ledger entry and purchases in one transaction. The ledger
// insert comes first so that concurrent deliveries of the same event race on
// its unique key and only one proceeds to the purchase writes.
func (r *Reconciler) commit(ctx context.Context, ev PaymentEvent) (created []purchase.Record, skipped []cart.LineItem, duplicate bool, err error) {
	timeout := r.TxTimeout
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	txCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := r.now()
	err = r.Store.WithinTx(txCtx, func(ctx context.Context, tx purchase.Tx) error {
		created, skipped, duplicate = nil, nil, false

		inserted, err := tx.InsertLedgerEntry(ctx, purchase.LedgerEntry{
			ExternalID:  ev.ExternalID,
			Provider:    ev.Provider,
			ItemCount:   len(ev.Cart.Items),
			Outcome:     purchase.OutcomeCommitted,
			ProcessedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			duplicate = true
			return nil
		}
		for _, item := range ev.Cart.Items {
			rec := purchase.NewRecord(ev.UserID, item.PhotoID, item.GalleryID, now)
			ok, err := tx.InsertPurchase(ctx, rec)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, rec)
			} else {
				skipped = append(skipped, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return created, skipped, duplicate, nil
}

func (r *Reconciler) notify(ctx context.Context, ev PaymentEvent, created []purchase.Record) {
	if r.Notifier == nil {
		return
	}
	photoIDs := make([]string, 0, len(created))
	for _, rec := range created {
		photoIDs = append(photoIDs, rec.PhotoID)
	}
	err := r.Notifier.NotifySettled(ctx, Settled{
		ExternalID: ev.ExternalID,
		Provider:   ev.Provider,
		UserID:     ev.UserID,
		PhotoIDs:   photoIDs,
		SettledAt:  r.now(),
	})
	result := "success"
	if err != nil {
		result = "error"
		r.logger().Warn().Err(err).Str("external_id", ev.ExternalID).Msg("settlement notification failed")
	}
	if obs.NotifyTotal != nil {
		obs.NotifyTotal.WithLabelValues(result).Inc()
	}
}

func (r *Reconciler) observe(res Result, elapsed time.Duration) {
	outcome := strings.ToLower(string(res.Outcome))
	provider := res.Provider
	if provider == "" {
		provider = "unknown"
	}
	if obs.SettlementTotal != nil {
		obs.SettlementTotal.WithLabelValues(provider, outcome).Inc()
	}
	if obs.SettlementDuration != nil {
		obs.SettlementDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
	if obs.PurchasesCreatedTotal != nil && len(res.Created) > 0 {
		obs.PurchasesCreatedTotal.Add(float64(len(res.Created)))
	}
	if obs.PurchasesSkippedTotal != nil && len(res.SkippedItems) > 0 {
		obs.PurchasesSkippedTotal.Add(float64(len(res.SkippedItems)))
	}

	var evt *zerolog.Event
	logger := r.logger()
	switch res.Outcome {
	case OutcomeCommitted, OutcomeSkipped:
		evt = logger.Info()
	case OutcomeRejected:
		evt = logger.Warn().Err(res.Err)
	default:
		evt = logger.Error().Err(res.Err)
	}
	evt.Str("external_id", res.ExternalID).
		Str("provider", provider).
		Str("state", string(res.State)).
		Str("outcome", string(res.Outcome)).
		Int("created", len(res.Created)).
		Int("skipped_items", len(res.SkippedItems)).
		Str("trail", res.TrailString()).
		Dur("elapsed", elapsed).
		Msg("settlement")
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Reconciler) logger() *zerolog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
