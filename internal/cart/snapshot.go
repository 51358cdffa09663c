package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	validator "github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidSnapshot reports a snapshot that fails structural validation.
	ErrInvalidSnapshot = errors.New("cart: invalid snapshot")
	// ErrSnapshotTooLarge is returned when a snapshot does not fit in provider metadata.
	ErrSnapshotTooLarge = errors.New("cart: snapshot too large for metadata")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LineItem is one purchasable photo.
type LineItem struct {
	PhotoID   string `json:"photoId" validate:"required,max=128"`
	GalleryID string `json:"galleryId" validate:"required,max=128"`
}

// Snapshot is the frozen list of items a buyer committed to pay for.
type Snapshot struct {
	Items      []LineItem `json:"items" validate:"max=500,unique=PhotoID,dive"`
	CapturedAt time.Time  `json:"capturedAt"`
}

// Validate checks every item of the snapshot. A photo may appear only once
// since a buyer can own it only once.
func (s Snapshot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

// ValidateNonEmpty is Validate plus a requirement of at least one item.
func (s Snapshot) ValidateNonEmpty() error {
	if len(s.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidSnapshot)
	}
	return s.Validate()
}

// Metadata keys used to carry a snapshot through the payment provider.
const (
	MetadataParts      = "cart_parts"
	MetadataCapturedAt = "cart_captured_at"
	metadataPartPrefix = "cart_"

	// metadataValueLimit and metadataMaxParts follow the tightest provider
	// limits (500 characters per value, 50 keys per object).
	metadataValueLimit = 500
	metadataMaxParts   = 40
)

type compactItem struct {
	P string `json:"p"`
	G string `json:"g"`
}

// EncodeMetadata serialises the snapshot into string key/value metadata so it
// survives the round trip through the payment provider. The item list is
// compact JSON split over numbered keys.
func EncodeMetadata(s Snapshot) (map[string]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	items := make([]compactItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, compactItem{P: it.PhotoID, G: it.GalleryID})
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	encoded := string(raw)
	md := make(map[string]string, 4)
	parts := 0
	for start := 0; start < len(encoded); parts++ {
		if parts == metadataMaxParts {
			return nil, fmt.Errorf("%w: more than %d parts", ErrSnapshotTooLarge, metadataMaxParts)
		}
		end := start + metadataValueLimit
		if end >= len(encoded) {
			end = len(encoded)
		} else {
			// never split a multi-byte character across two values
			for end > start && !utf8.RuneStart(encoded[end]) {
				end--
			}
		}
		md[metadataPartPrefix+strconv.Itoa(parts)] = encoded[start:end]
		start = end
	}
	md[MetadataParts] = strconv.Itoa(parts)
	if !s.CapturedAt.IsZero() {
		md[MetadataCapturedAt] = s.CapturedAt.UTC().Format(time.RFC3339)
	}
	return md, nil
}

// DecodeMetadata rebuilds a snapshot written by EncodeMetadata.
func DecodeMetadata(md map[string]string) (Snapshot, error) {
	parts, err := strconv.Atoi(strings.TrimSpace(md[MetadataParts]))
	if err != nil || parts <= 0 || parts > metadataMaxParts {
		return Snapshot{}, fmt.Errorf("%w: missing or invalid %s", ErrInvalidSnapshot, MetadataParts)
	}
	var b strings.Builder
	for i := 0; i < parts; i++ {
		chunk, ok := md[metadataPartPrefix+strconv.Itoa(i)]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: missing metadata part %d", ErrInvalidSnapshot, i)
		}
		b.WriteString(chunk)
	}
	var items []compactItem
	if err := json.Unmarshal([]byte(b.String()), &items); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	snap := Snapshot{Items: make([]LineItem, 0, len(items))}
	for _, it := range items {
		snap.Items = append(snap.Items, LineItem{PhotoID: it.P, GalleryID: it.G})
	}
	if v := strings.TrimSpace(md[MetadataCapturedAt]); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: captured at: %v", ErrInvalidSnapshot, err)
		}
		snap.CapturedAt = ts
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
