package cart

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-galeri/internal/catalog"
	"github.com/noah-isme/backend-galeri/internal/obs"
	"github.com/noah-isme/backend-galeri/internal/pricing"
)

var (
	// ErrGalleryNotFound is returned when a cart item references an unknown gallery.
	ErrGalleryNotFound = errors.New("cart: gallery not found")
	// ErrGalleryNotPurchasable is returned when a gallery exists but is not on sale.
	ErrGalleryNotPurchasable = errors.New("cart: gallery not purchasable")
)

// ProfileSource provides gallery price profiles.
type ProfileSource interface {
	GetPriceProfile(ctx context.Context, galleryID string) (catalog.PriceProfile, error)
}

// GalleryQuote is the priced group of items belonging to one gallery.
type GalleryQuote struct {
	GalleryID string         `json:"galleryId"`
	PhotoIDs  []string       `json:"photoIds"`
	Items     []LineItem     `json:"-"`
	Pricing   pricing.Result `json:"pricing"`
}

// Quote is the display price of a cart. It is never the source of truth for
// what is charged.
type Quote struct {
	TotalPrice pricing.Money  `json:"totalPrice"`
	Galleries  []GalleryQuote `json:"galleries"`
}

// Aggregator prices carts gallery by gallery.
type Aggregator struct {
	Catalog ProfileSource
}

// PriceCart groups items by gallery in order of first appearance, prices each
// group with the bundle engine and sums the totals. It performs no writes.
func (a *Aggregator) PriceCart(ctx context.Context, snap Snapshot) (Quote, error) {
	if a == nil || a.Catalog == nil {
		return Quote{}, errors.New("cart: aggregator not configured")
	}
	ctx, span := otel.Tracer("cart.Aggregator").Start(ctx, "Aggregator.PriceCart")
	defer span.End()
	span.SetAttributes(attribute.Int("cart.items", len(snap.Items)))

	result := "error"
	defer func() {
		if obs.QuoteTotal != nil {
			obs.QuoteTotal.WithLabelValues(result).Inc()
		}
	}()

	if err := snap.Validate(); err != nil {
		result = errorLabel(err)
		return Quote{}, err
	}

	groups := GroupByGallery(snap.Items)
	quote := Quote{Galleries: make([]GalleryQuote, 0, len(groups))}
	for _, g := range groups {
		profile, err := a.profile(ctx, g.GalleryID)
		if err != nil {
			result = errorLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Quote{}, err
		}
		priced, err := pricing.ComputeBundlePrice(profile.BasePrice, profile.Tiers, len(g.Items))
		if err != nil {
			result = errorLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Quote{}, fmt.Errorf("cart: price gallery %s: %w", g.GalleryID, err)
		}
		g.Pricing = priced
		quote.TotalPrice += priced.Total
		quote.Galleries = append(quote.Galleries, g)
	}
	result = "success"
	span.SetAttributes(
		attribute.Int("cart.galleries", len(quote.Galleries)),
		attribute.Int64("cart.total", quote.TotalPrice),
	)
	return quote, nil
}

// PriceGallery prices quantity photos of a single gallery.
func (a *Aggregator) PriceGallery(ctx context.Context, galleryID string, quantity int) (pricing.Result, error) {
	if a == nil || a.Catalog == nil {
		return pricing.Result{}, errors.New("cart: aggregator not configured")
	}
	profile, err := a.profile(ctx, galleryID)
	if err != nil {
		return pricing.Result{}, err
	}
	return pricing.ComputeBundlePrice(profile.BasePrice, profile.Tiers, quantity)
}

func (a *Aggregator) profile(ctx context.Context, galleryID string) (catalog.PriceProfile, error) {
	profile, err := a.Catalog.GetPriceProfile(ctx, galleryID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.PriceProfile{}, fmt.Errorf("%w: %s", ErrGalleryNotFound, galleryID)
		}
		return catalog.PriceProfile{}, err
	}
	if !profile.Purchasable {
		return catalog.PriceProfile{}, fmt.Errorf("%w: %s", ErrGalleryNotPurchasable, galleryID)
	}
	return profile, nil
}

// GroupByGallery splits items into per-gallery groups, keeping galleries in the
// order they first appear and items in their original order.
func GroupByGallery(items []LineItem) []GalleryQuote {
	index := make(map[string]int)
	groups := make([]GalleryQuote, 0)
	for _, it := range items {
		i, ok := index[it.GalleryID]
		if !ok {
			i = len(groups)
			index[it.GalleryID] = i
			groups = append(groups, GalleryQuote{GalleryID: it.GalleryID})
		}
		groups[i].Items = append(groups[i].Items, it)
		groups[i].PhotoIDs = append(groups[i].PhotoIDs, it.PhotoID)
	}
	return groups
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSnapshot):
		return "invalid_snapshot"
	case errors.Is(err, ErrGalleryNotFound):
		return "gallery_not_found"
	case errors.Is(err, ErrGalleryNotPurchasable):
		return "gallery_not_purchasable"
	case errors.Is(err, pricing.ErrInvalidTierConfig):
		return "invalid_tier_config"
	case errors.Is(err, pricing.ErrPricingInvariant):
		return "invariant_violation"
	default:
		return "error"
	}
}
