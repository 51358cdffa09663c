package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	insertLedgerSQL = `INSERT INTO settlement_ledger (external_id, provider, item_count, outcome, processed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (external_id) DO NOTHING`

	insertPurchaseSQL = `INSERT INTO purchases (id, user_id, photo_id, gallery_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, photo_id) DO NOTHING`

	listByUserSQL = `SELECT id, user_id, photo_id, gallery_id, created_at
FROM purchases
WHERE user_id = $1
ORDER BY created_at DESC, id DESC`
)

// Postgres persists the ledger and purchases with pgx.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

// WithinTx runs fn inside a read-committed transaction. Uniqueness is
// enforced by the ledger and purchase unique keys, so concurrent deliveries of
// one event serialise on the ledger insert.
func (p *Postgres) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) (err error) {
	if p == nil || p.Pool == nil {
		return ErrStoreUnavailable
	}
	ctx, span := otel.Tracer("purchase.Postgres").Start(ctx, "Postgres.WithinTx")
	defer span.End()

	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("purchase: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("purchase: commit: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgTx struct {
	tx execer
}

func (t pgTx) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (bool, error) {
	tag, err := t.tx.Exec(ctx, insertLedgerSQL, e.ExternalID, e.Provider, e.ItemCount, e.Outcome, e.ProcessedAt)
	if err != nil {
		return false, wrapPgError("insert ledger entry", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t pgTx) InsertPurchase(ctx context.Context, r Record) (bool, error) {
	tag, err := t.tx.Exec(ctx, insertPurchaseSQL, r.ID, r.UserID, r.PhotoID, r.GalleryID, r.CreatedAt)
	if err != nil {
		return false, wrapPgError("insert purchase", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the buyer's purchases ordered newest first.
func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	if p == nil || p.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []Record{}, nil
	}
	ctx, span := otel.Tracer("purchase.Postgres").Start(ctx, "Postgres.ListByUser")
	defer span.End()
	span.SetAttributes(attribute.String("purchase.user_id", userID))

	rows, err := p.Pool.Query(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("purchase: list by user: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.UserID, &r.PhotoID, &r.GalleryID, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("purchase: scan purchases: %w", err)
	}
	span.SetAttributes(attribute.Int("purchase.count", len(records)))
	return records, nil
}

// wrapPgError adds the SQLSTATE to server-side errors so logs show whether a
// rollback came from a constraint, a deadlock or a lost connection.
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("purchase: %s (sqlstate %s): %w", op, pgErr.Code, err)
	}
	return fmt.Errorf("purchase: %s: %w", op, err)
}
