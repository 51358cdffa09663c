package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-galeri/internal/common"
	"github.com/noah-isme/backend-galeri/internal/pricing"
)

// Handler exposes read-only pricing endpoints to the checkout UI.
type Handler struct {
	Agg    *Aggregator
	Logger *zerolog.Logger
}

type quoteReq struct {
	Items []LineItem `json:"items"`
}

// Quote prices the posted cart. The response is informational only.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Agg == nil {
		common.JSONError(w, http.StatusInternalServerError, "PRICING_NOT_CONFIGURED", "pricing unavailable", nil)
		return
	}
	var req quoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	snap := Snapshot{Items: req.Items, CapturedAt: time.Now().UTC()}
	for i := range snap.Items {
		snap.Items[i].PhotoID = strings.TrimSpace(snap.Items[i].PhotoID)
		snap.Items[i].GalleryID = strings.TrimSpace(snap.Items[i].GalleryID)
	}
	if err := snap.ValidateNonEmpty(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	quote, err := h.Agg.PriceCart(r.Context(), snap)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// GalleryQuote prices ?quantity=n photos of the gallery in the path.
func (h *Handler) GalleryQuote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Agg == nil {
		common.JSONError(w, http.StatusInternalServerError, "PRICING_NOT_CONFIGURED", "pricing unavailable", nil)
		return
	}
	galleryID := strings.TrimSpace(chi.URLParam(r, "galleryId"))
	if galleryID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "galleryId is required", nil)
		return
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("quantity")))
	if err != nil || quantity < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity must be a non-negative integer", nil)
		return
	}
	res, err := h.Agg.PriceGallery(r.Context(), galleryID, quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"galleryId": galleryID,
		"pricing":   res,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidSnapshot), errors.Is(err, pricing.ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrGalleryNotFound):
		common.JSONError(w, http.StatusNotFound, "GALLERY_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrGalleryNotPurchasable):
		common.JSONError(w, http.StatusConflict, "GALLERY_NOT_PURCHASABLE", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidTierConfig), errors.Is(err, pricing.ErrPricingInvariant):
		h.logger().Error().Err(err).Msg("gallery pricing misconfigured")
		common.JSONError(w, http.StatusInternalServerError, "PRICING_ERROR", "gallery pricing is misconfigured", nil)
	default:
		h.logger().Error().Err(err).Msg("price cart")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to price cart", nil)
	}
}

func (h *Handler) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
