package purchase

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-galeri/internal/common"
)

// Handler serves the buyer's purchase history.
type Handler struct {
	Store  Lister
	Logger *zerolog.Logger
}

// List returns the authenticated buyer's purchases, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "purchase store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page := common.ParsePage(r, 50, 200)

	records, err := h.Store.ListByUser(r.Context(), userID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error().Err(err).Str("user_id", userID).Msg("list purchases")
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list purchases", nil)
		return
	}

	start, end := page.Bounds(len(records))
	w.Header().Set("X-Total-Count", strconv.Itoa(page.TotalItems))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       records[start:end],
		"pagination": page,
	})
}
