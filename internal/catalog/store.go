package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-galeri/internal/pricing"
)

// ErrNotFound is returned when a gallery has no price profile.
var ErrNotFound = errors.New("catalog: gallery not found")

// StatusPublished is the only gallery status that can be sold.
const StatusPublished = "published"

// PriceProfile is a read snapshot of a gallery's pricing.
type PriceProfile struct {
	GalleryID   string         `json:"galleryId"`
	BasePrice   pricing.Money  `json:"basePrice"`
	Tiers       []pricing.Tier `json:"tiers"`
	Purchasable bool           `json:"purchasable"`
}

// Querier is the subset of pgx used by Store; *pgxpool.Pool satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads price profiles maintained by gallery management.
type Store struct {
	Q Querier
}

// NewStore constructs a Postgres backed catalog store.
func NewStore(q Querier) *Store {
	return &Store{Q: q}
}

// getProfileSQL reads the profile and its tiers in one statement so both come
// from the same snapshot; a concurrent edit can never pair a new base price
// with old tiers.
const getProfileSQL = `SELECT p.gallery_id, p.base_price, p.status, p.archived_at IS NOT NULL,
	COALESCE((
		SELECT json_agg(json_build_object('quantity', t.quantity, 'price', t.price) ORDER BY t.quantity)
		FROM gallery_pricing_tiers t
		WHERE t.gallery_id = p.gallery_id
	), '[]'::json)
FROM gallery_price_profiles p
WHERE p.gallery_id = $1`

type tierJSON struct {
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

// GetPriceProfile loads the base price, sellable state and tiers of a gallery.
func (s *Store) GetPriceProfile(ctx context.Context, galleryID string) (PriceProfile, error) {
	if s == nil || s.Q == nil {
		return PriceProfile{}, errors.New("catalog: store not configured")
	}
	galleryID = strings.TrimSpace(galleryID)
	if galleryID == "" {
		return PriceProfile{}, ErrNotFound
	}
	ctx, span := otel.Tracer("catalog.Store").Start(ctx, "CatalogStore.GetPriceProfile")
	defer span.End()
	span.SetAttributes(attribute.String("gallery.id", galleryID))

	var (
		profile  PriceProfile
		status   string
		archived bool
		rawTiers []byte
	)
	err := s.Q.QueryRow(ctx, getProfileSQL, galleryID).Scan(&profile.GalleryID, &profile.BasePrice, &status, &archived, &rawTiers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PriceProfile{}, ErrNotFound
		}
		span.RecordError(err)
		return PriceProfile{}, fmt.Errorf("catalog: load profile %s: %w", galleryID, err)
	}
	profile.Purchasable = !archived && strings.EqualFold(strings.TrimSpace(status), StatusPublished)

	var tiers []tierJSON
	if err := json.Unmarshal(rawTiers, &tiers); err != nil {
		span.RecordError(err)
		return PriceProfile{}, fmt.Errorf("catalog: decode tiers %s: %w", galleryID, err)
	}
	profile.Tiers = make([]pricing.Tier, 0, len(tiers))
	for _, t := range tiers {
		profile.Tiers = append(profile.Tiers, pricing.Tier{
			GalleryID: profile.GalleryID,
			Quantity:  t.Quantity,
			Price:     t.Price,
		})
	}
	span.SetAttributes(attribute.Int("gallery.tiers", len(profile.Tiers)))
	return profile, nil
}
