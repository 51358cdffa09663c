package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Ledger outcomes recorded at insert time.
const (
	OutcomeCommitted = "committed"
)

// ErrStoreUnavailable is returned when a store has no backing connection.
var ErrStoreUnavailable = errors.New("purchase: store unavailable")

// Record is one photo a buyer owns.
type Record struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	PhotoID   string    `json:"photoId"`
	GalleryID string    `json:"galleryId"`
	CreatedAt time.Time `json:"createdAt"`
}

// LedgerEntry marks one payment event as processed. Entries are written once
// and never updated.
type LedgerEntry struct {
	ExternalID  string
	Provider    string
	ItemCount   int
	Outcome     string
	ProcessedAt time.Time
}

// Tx is the write surface available inside a settlement transaction.
type Tx interface {
	// InsertLedgerEntry reports false when the external id was already recorded.
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) (bool, error)
	// InsertPurchase reports false when the user already owns the photo.
	InsertPurchase(ctx context.Context, r Record) (bool, error)
}

// TxRunner runs fn in a single all-or-nothing transaction. A non-nil error
// from fn rolls back every write made through the Tx.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Lister returns a buyer's purchases, newest first.
type Lister interface {
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}

// NewRecord fills the generated fields of a purchase.
func NewRecord(userID, photoID, galleryID string, now time.Time) Record {
	return Record{
		ID:        uuid.New(),
		UserID:    userID,
		PhotoID:   photoID,
		GalleryID: galleryID,
		CreatedAt: now.UTC(),
	}
}
