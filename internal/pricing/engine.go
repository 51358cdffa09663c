package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Money represents a monetary value stored in minor units.
type Money = int64

var (
	// ErrInvalidTierConfig reports malformed gallery pricing data.
	ErrInvalidTierConfig = errors.New("pricing: invalid tier config")
	// ErrInvalidQuantity is returned for negative or unreasonably large quantities.
	ErrInvalidQuantity = errors.New("pricing: invalid quantity")
	// ErrPricingInvariant signals an incoherent computation result. It always
	// points at a bug or corrupted configuration and must never be charged.
	ErrPricingInvariant = errors.New("pricing: invariant violation")
)

// MaxQuantity bounds the number of photos priced in a single computation and
// the size of any tier.
const MaxQuantity = 10_000

// maxBasePrice keeps every intermediate cost within int64.
const maxBasePrice = math.MaxInt64 / (2 * MaxQuantity)

// Tier is a fixed price for buying an exact quantity of photos from one gallery.
type Tier struct {
	GalleryID string `json:"galleryId,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     Money  `json:"price"`
}

// LineKind distinguishes bundle lines from individually priced photos.
type LineKind string

const (
	KindBundle     LineKind = "bundle"
	KindIndividual LineKind = "individual"
)

// Line is one entry of the receipt breakdown. Count identical moves are merged
// into a single line; Quantity is the number of photos the line covers.
type Line struct {
	Kind       LineKind `json:"kind"`
	Label      string   `json:"label"`
	BundleSize int      `json:"bundleSize"`
	Count      int      `json:"count"`
	Quantity   int      `json:"quantity"`
	UnitPrice  Money    `json:"unitPrice"`
	TotalPrice Money    `json:"totalPrice"`
}

// Result is the minimum-cost pricing of a quantity of photos.
type Result struct {
	Quantity        int    `json:"quantity"`
	Total           Money  `json:"total"`
	IndividualTotal Money  `json:"individualTotal"`
	Savings         Money  `json:"savings"`
	Lines           []Line `json:"lines"`
}

// ValidateTiers checks the base price and every tier against the catalog rules:
// positive values, distinct quantities, a single gallery, and no tier priced
// above buying the same photos individually.
func ValidateTiers(basePrice Money, tiers []Tier) error {
	if basePrice <= 0 {
		return fmt.Errorf("%w: base price must be positive, got %d", ErrInvalidTierConfig, basePrice)
	}
	if basePrice > maxBasePrice {
		return fmt.Errorf("%w: base price %d too large", ErrInvalidTierConfig, basePrice)
	}
	seen := make(map[int]struct{}, len(tiers))
	gallery := ""
	for _, t := range tiers {
		if t.Quantity <= 0 || t.Quantity > MaxQuantity {
			return fmt.Errorf("%w: tier quantity must be in 1..%d, got %d", ErrInvalidTierConfig, MaxQuantity, t.Quantity)
		}
		if t.Price <= 0 {
			return fmt.Errorf("%w: tier %d price must be positive, got %d", ErrInvalidTierConfig, t.Quantity, t.Price)
		}
		if _, dup := seen[t.Quantity]; dup {
			return fmt.Errorf("%w: duplicate tier quantity %d", ErrInvalidTierConfig, t.Quantity)
		}
		seen[t.Quantity] = struct{}{}
		if t.GalleryID != "" {
			if gallery != "" && gallery != t.GalleryID {
				return fmt.Errorf("%w: tiers span galleries %s and %s", ErrInvalidTierConfig, gallery, t.GalleryID)
			}
			gallery = t.GalleryID
		}
		if t.Price > Money(t.Quantity)*basePrice {
			return fmt.Errorf("%w: tier %d price %d exceeds individual price %d", ErrInvalidTierConfig, t.Quantity, t.Price, Money(t.Quantity)*basePrice)
		}
	}
	return nil
}

// move is one step of a decomposition: a single photo (size 1, no tier) or one tier.
type move struct {
	size   int
	price  Money
	bundle bool
}

// ComputeBundlePrice returns the cheapest way to buy quantity photos of one
// gallery. It solves the unbounded knapsack over exact quantities with two move
// types (one photo at basePrice, or one tier), preferring fewer moves and then
// larger tiers on equal cost. A bundle may also be applied to fewer photos than
// its size when that is cheaper than any exact decomposition, which keeps the
// price non-decreasing in quantity.
func ComputeBundlePrice(basePrice Money, tiers []Tier, quantity int) (Result, error) {
	if err := ValidateTiers(basePrice, tiers); err != nil {
		return Result{}, err
	}
	if quantity < 0 || quantity > MaxQuantity {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return Result{Lines: []Line{}}, nil
	}

	moves := make([]move, 0, len(tiers)+1)
	moves = append(moves, move{size: 1, price: basePrice})
	maxSize := 1
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Quantity > sorted[j].Quantity })
	for _, t := range sorted {
		moves = append(moves, move{size: t.Quantity, price: t.Price, bundle: true})
		if t.Quantity > maxSize {
			maxSize = t.Quantity
		}
	}

	// cost[k] is the cheapest exact decomposition of k photos; steps[k] its move
	// count; choice[k] the index into moves taken last.
	limit := quantity + maxSize - 1
	cost := make([]Money, limit+1)
	steps := make([]int, limit+1)
	choice := make([]int, limit+1)
	for k := 1; k <= limit; k++ {
		cost[k] = -1
		for i, m := range moves {
			if m.size > k {
				continue
			}
			c := cost[k-m.size] + m.price
			n := steps[k-m.size] + 1
			if cost[k] < 0 || better(c, n, m.size, cost[k], steps[k], moves[choice[k]].size) {
				cost[k], steps[k], choice[k] = c, n, i
			}
		}
	}

	// The smallest covering quantity wins ties so exact decompositions are preferred.
	target := quantity
	for j := quantity + 1; j <= limit; j++ {
		if cost[j] < cost[target] {
			target = j
		}
	}

	result := Result{
		Quantity:        quantity,
		Total:           cost[target],
		IndividualTotal: Money(quantity) * basePrice,
	}
	result.Savings = result.IndividualTotal - result.Total
	result.Lines = reconstruct(moves, choice, target, target-quantity)
	if err := checkInvariants(result, basePrice); err != nil {
		return Result{}, err
	}
	return result, nil
}

func better(cost Money, steps, size int, bestCost Money, bestSteps, bestSize int) bool {
	if cost != bestCost {
		return cost < bestCost
	}
	if steps != bestSteps {
		return steps < bestSteps
	}
	return size > bestSize
}

// reconstruct walks back from k through the recorded choices and merges equal
// moves into receipt lines. excess photos are removed from the largest bundle.
func reconstruct(moves []move, choice []int, k, excess int) []Line {
	counts := make(map[int]int, len(moves))
	for k > 0 {
		idx := choice[k]
		counts[idx]++
		k -= moves[idx].size
	}
	lines := make([]Line, 0, len(counts))
	// moves is ordered largest tier first with the single-photo move at index 0,
	// so bundles come out largest first and individual photos last.
	for i := 1; i < len(moves); i++ {
		if n := counts[i]; n > 0 {
			lines = append(lines, newLine(moves[i], n))
		}
	}
	if n := counts[0]; n > 0 {
		lines = append(lines, newLine(moves[0], n))
	}
	if excess > 0 && len(lines) > 0 {
		lines[0].Quantity -= excess
	}
	return lines
}

func newLine(m move, count int) Line {
	line := Line{
		Kind:       KindIndividual,
		Label:      "individual",
		BundleSize: m.size,
		Count:      count,
		Quantity:   m.size * count,
		UnitPrice:  m.price,
		TotalPrice: m.price * Money(count),
	}
	if m.bundle {
		line.Kind = KindBundle
		line.Label = fmt.Sprintf("bundle of %d", m.size)
	}
	return line
}

func checkInvariants(r Result, basePrice Money) error {
	if r.Total < 0 {
		return fmt.Errorf("%w: negative total %d", ErrPricingInvariant, r.Total)
	}
	if r.Total > Money(r.Quantity)*basePrice {
		return fmt.Errorf("%w: total %d exceeds individual price %d", ErrPricingInvariant, r.Total, Money(r.Quantity)*basePrice)
	}
	var sum Money
	photos := 0
	for _, l := range r.Lines {
		if l.Quantity <= 0 || l.Count <= 0 {
			return fmt.Errorf("%w: empty line %q", ErrPricingInvariant, l.Label)
		}
		sum += l.TotalPrice
		photos += l.Quantity
	}
	if sum != r.Total {
		return fmt.Errorf("%w: lines sum to %d, total is %d", ErrPricingInvariant, sum, r.Total)
	}
	if photos != r.Quantity {
		return fmt.Errorf("%w: lines cover %d photos, want %d", ErrPricingInvariant, photos, r.Quantity)
	}
	return nil
}
