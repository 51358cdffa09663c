package purchase

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps ledger entries and purchases in process. Transactions are
// serialised and staged, so a failed transaction leaves no trace.
type MemoryStore struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	ledger    map[string]LedgerEntry
	purchases map[ownershipKey]Record
}

type ownershipKey struct {
	userID  string
	photoID string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledger:    make(map[string]LedgerEntry),
		purchases: make(map[ownershipKey]Record),
	}
}

// WithinTx implements TxRunner.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: m, ledger: map[string]LedgerEntry{}, purchases: map[ownershipKey]Record{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range tx.ledger {
		m.ledger[k] = v
	}
	for k, v := range tx.purchases {
		m.purchases[k] = v
	}
	return nil
}

// ListByUser implements Lister.
func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]Record, error) {
	userID = strings.TrimSpace(userID)
	m.mu.RLock()
	out := make([]Record, 0)
	for k, r := range m.purchases {
		if k.userID == userID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

// LedgerEntry returns the committed entry for externalID.
func (m *MemoryStore) LedgerEntry(externalID string) (LedgerEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.ledger[externalID]
	return e, ok
}

// Counts reports committed ledger entries and purchases.
func (m *MemoryStore) Counts() (ledger, purchases int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ledger), len(m.purchases)
}

type memoryTx struct {
	store     *MemoryStore
	ledger    map[string]LedgerEntry
	purchases map[ownershipKey]Record
}

func (t *memoryTx) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := t.ledger[e.ExternalID]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, exists := t.store.ledger[e.ExternalID]
	t.store.mu.RUnlock()
	if exists {
		return false, nil
	}
	t.ledger[e.ExternalID] = e
	return true, nil
}

func (t *memoryTx) InsertPurchase(ctx context.Context, r Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := ownershipKey{userID: r.UserID, photoID: r.PhotoID}
	if _, ok := t.purchases[key]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, exists := t.store.purchases[key]
	t.store.mu.RUnlock()
	if exists {
		return false, nil
	}
	t.purchases[key] = r
	return true, nil
}
