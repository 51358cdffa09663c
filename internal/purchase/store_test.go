package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-galeri/internal/common"
)

func TestMemoryStoreRollsBackFailedTx(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")
	now := time.Now()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		ok, err := tx.InsertLedgerEntry(ctx, LedgerEntry{ExternalID: "evt_1", Outcome: OutcomeCommitted, ProcessedAt: now})
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = tx.InsertPurchase(ctx, NewRecord("u1", "p1", "g1", now))
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	ledger, purchases := store.Counts()
	require.Zero(t, ledger)
	require.Zero(t, purchases)
	_, found := store.LedgerEntry("evt_1")
	require.False(t, found)
}

func TestMemoryStoreUniqueness(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	insert := func(externalID string, photos ...string) (ledgerOK bool, created int) {
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			var err error
			ledgerOK, err = tx.InsertLedgerEntry(ctx, LedgerEntry{ExternalID: externalID, Outcome: OutcomeCommitted, ProcessedAt: now})
			if err != nil || !ledgerOK {
				return err
			}
			for _, p := range photos {
				ok, err := tx.InsertPurchase(ctx, NewRecord("u1", p, "g1", now))
				if err != nil {
					return err
				}
				if ok {
					created++
				}
			}
			return nil
		})
		require.NoError(t, err)
		return ledgerOK, created
	}

	ok, created := insert("evt_1", "p1", "p2", "p2")
	require.True(t, ok)
	require.Equal(t, 2, created)

	ok, _ = insert("evt_1", "p3")
	require.False(t, ok)

	ok, created = insert("evt_2", "p2", "p3")
	require.True(t, ok)
	require.Equal(t, 1, created)

	ledger, purchases := store.Counts()
	require.Equal(t, 2, ledger)
	require.Equal(t, 3, purchases)
}

func TestMemoryStoreConcurrentLedgerInsert(t *testing.T) {
	store := NewMemoryStore()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
				ok, err := tx.InsertLedgerEntry(ctx, LedgerEntry{ExternalID: "evt_race"})
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return err
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := store.WithinTx(ctx, func(context.Context, Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestListByUserNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		for i, p := range []string{"p1", "p2", "p3"} {
			if _, err := tx.InsertPurchase(ctx, NewRecord("u1", p, "g1", base.Add(time.Duration(i)*time.Minute))); err != nil {
				return err
			}
		}
		_, err := tx.InsertPurchase(ctx, NewRecord("u2", "p1", "g1", base))
		return err
	})
	require.NoError(t, err)

	records, err := store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, []string{"p3", "p2", "p1"}, []string{records[0].PhotoID, records[1].PhotoID, records[2].PhotoID})

	records, err = store.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, records)
}

type fakeExec struct {
	tag  string
	err  error
	sqls []string
}

func (f *fakeExec) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sqls = append(f.sqls, sql)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func TestPgTxMapsConflictToFalse(t *testing.T) {
	ctx := context.Background()

	inserted := &fakeExec{tag: "INSERT 0 1"}
	ok, err := pgTx{tx: inserted}.InsertLedgerEntry(ctx, LedgerEntry{ExternalID: "evt_1"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, inserted.sqls[0], "ON CONFLICT (external_id) DO NOTHING")

	conflict := &fakeExec{tag: "INSERT 0 0"}
	ok, err = pgTx{tx: conflict}.InsertPurchase(ctx, Record{ID: uuid.New(), UserID: "u1", PhotoID: "p1"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, conflict.sqls[0], "ON CONFLICT (user_id, photo_id) DO NOTHING")

	failing := &fakeExec{err: errors.New("connection reset")}
	_, err = pgTx{tx: failing}.InsertPurchase(ctx, Record{})
	require.Error(t, err)

	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	_, err = pgTx{tx: &fakeExec{err: deadlock}}.InsertLedgerEntry(ctx, LedgerEntry{ExternalID: "evt_2"})
	require.ErrorIs(t, err, deadlock)
	require.Contains(t, err.Error(), "sqlstate 40P01")
}

// uniqueKeyExec mimics a unique index on the first bound argument: only the
// first insert of a key reports a row.
type uniqueKeyExec struct {
	mu   sync.Mutex
	keys map[any]struct{}
}

func (u *uniqueKeyExec) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, dup := u.keys[args[0]]; dup {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	u.keys[args[0]] = struct{}{}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPgTxConcurrentLedgerInsertSingleWinner(t *testing.T) {
	exec := &uniqueKeyExec{keys: map[any]struct{}{}}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := pgTx{tx: exec}.InsertLedgerEntry(context.Background(), LedgerEntry{ExternalID: "evt_race", Outcome: OutcomeCommitted})
			require.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)

	ok, err := pgTx{tx: exec}.InsertLedgerEntry(context.Background(), LedgerEntry{ExternalID: "evt_other"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPostgresWithoutPool(t *testing.T) {
	var p *Postgres
	require.ErrorIs(t, p.WithinTx(context.Background(), func(context.Context, Tx) error { return nil }), ErrStoreUnavailable)
	_, err := NewPostgres(nil).ListByUser(context.Background(), "u1")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestListHandler(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.InsertPurchase(ctx, NewRecord("u1", "p"+strings.Repeat("x", i), "g1", base.Add(time.Duration(i)*time.Second))); err != nil {
				return err
			}
		}
		return nil
	}))
	h := &Handler{Store: store}

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/purchases", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/purchases?limit=2", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	var resp struct {
		Data []Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "pxx", resp.Data[0].PhotoID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/purchases?page=5", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Data)
}
