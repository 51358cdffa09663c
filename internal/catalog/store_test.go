package catalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-galeri/internal/catalog"
	"github.com/noah-isme/backend-galeri/internal/pricing"
)

type profileRow struct {
	galleryID string
	basePrice int64
	status    string
	archived  bool
	tiers     string
	err       error
}

func (r profileRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.galleryID
	*dest[1].(*pricing.Money) = r.basePrice
	*dest[2].(*string) = r.status
	*dest[3].(*bool) = r.archived
	*dest[4].(*[]byte) = []byte(r.tiers)
	return nil
}

type recordingQuerier struct {
	row   profileRow
	calls []string
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.calls = append(q.calls, sql)
	return q.row
}

func TestStoreReadsProfileAndTiersInOneStatement(t *testing.T) {
	q := &recordingQuerier{row: profileRow{
		galleryID: "wedding-2024",
		basePrice: 1000,
		status:    "Published",
		tiers:     `[{"quantity":3,"price":2500},{"quantity":5,"price":4000}]`,
	}}
	profile, err := catalog.NewStore(q).GetPriceProfile(context.Background(), " wedding-2024 ")
	require.NoError(t, err)
	require.Len(t, q.calls, 1)
	require.True(t, strings.Contains(q.calls[0], "json_agg"))

	require.Equal(t, catalog.PriceProfile{
		GalleryID:   "wedding-2024",
		BasePrice:   1000,
		Purchasable: true,
		Tiers: []pricing.Tier{
			{GalleryID: "wedding-2024", Quantity: 3, Price: 2500},
			{GalleryID: "wedding-2024", Quantity: 5, Price: 4000},
		},
	}, profile)
}

func TestStoreSellableState(t *testing.T) {
	cases := map[string]struct {
		status   string
		archived bool
		want     bool
	}{
		"published": {"published", false, true},
		"draft":     {"draft", false, false},
		"archived":  {"published", true, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			q := &recordingQuerier{row: profileRow{galleryID: "g", basePrice: 500, status: tc.status, archived: tc.archived, tiers: "[]"}}
			profile, err := catalog.NewStore(q).GetPriceProfile(context.Background(), "g")
			require.NoError(t, err)
			require.Equal(t, tc.want, profile.Purchasable)
			require.Empty(t, profile.Tiers)
		})
	}
}

func TestStoreErrors(t *testing.T) {
	_, err := catalog.NewStore(&recordingQuerier{row: profileRow{err: pgx.ErrNoRows}}).GetPriceProfile(context.Background(), "ghost")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	boom := errors.New("conn reset")
	_, err = catalog.NewStore(&recordingQuerier{row: profileRow{err: boom}}).GetPriceProfile(context.Background(), "g")
	require.ErrorIs(t, err, boom)

	_, err = catalog.NewStore(&recordingQuerier{row: profileRow{galleryID: "g", basePrice: 1, tiers: "{"}}).GetPriceProfile(context.Background(), "g")
	require.Error(t, err)

	q := &recordingQuerier{}
	_, err = catalog.NewStore(q).GetPriceProfile(context.Background(), "  ")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Empty(t, q.calls)
}
