package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=20", nil)
	require.Equal(t, Page{Page: 3, PerPage: 20}, ParsePage(req, 50, 200))

	req = httptest.NewRequest(http.MethodGet, "/?page=-1&limit=abc", nil)
	require.Equal(t, Page{Page: 1, PerPage: 50}, ParsePage(req, 50, 200))

	req = httptest.NewRequest(http.MethodGet, "/?limit=5000", nil)
	require.Equal(t, 200, ParsePage(req, 50, 200).PerPage)
}

func TestPageBounds(t *testing.T) {
	cases := []struct {
		page       Page
		total      int
		start, end int
	}{
		{Page{Page: 1, PerPage: 2}, 5, 0, 2},
		{Page{Page: 3, PerPage: 2}, 5, 4, 5},
		{Page{Page: 4, PerPage: 2}, 5, 5, 5},
		{Page{Page: 1, PerPage: 10}, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("page %d of %d", tc.page.Page, tc.total), func(t *testing.T) {
			p := tc.page
			start, end := p.Bounds(tc.total)
			require.Equal(t, tc.start, start)
			require.Equal(t, tc.end, end)
			require.Equal(t, tc.total, p.TotalItems)
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	require.Equal(t, "192.0.2.7", ClientIP(req))

	// proxy headers are resolved upstream by chi's RealIP
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "192.0.2.7", ClientIP(req))

	req.RemoteAddr = "[::ffff:198.51.100.2]:443"
	require.Equal(t, "198.51.100.2", ClientIP(req))

	req.RemoteAddr = "2001:db8::1"
	require.Equal(t, "2001:db8::1", ClientIP(req))

	require.Empty(t, ClientIP(nil))
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	require.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), " buyer-1 "))
	require.True(t, ok)
	require.Equal(t, "buyer-1", id)

	_, ok = UserID(WithUserID(context.Background(), "  "))
	require.False(t, ok)
}

func TestAppError(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("list: %w", NewError(http.StatusServiceUnavailable, "UNAVAILABLE", "try later", cause))
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "UNAVAILABLE", appErr.Code)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "plain", NewError(http.StatusBadRequest, "X", "plain", nil).Error())

	_, ok = AsAppError(cause)
	require.False(t, ok)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusConflict, "GALLERY_NOT_PURCHASABLE", "gallery is not for sale", map[string]any{"galleryId": "g1"})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decodeError(t, rr)
	require.Equal(t, "GALLERY_NOT_PURCHASABLE", body.Code)
	require.Equal(t, map[string]any{"galleryId": "g1"}, body.Details)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("auth: %w", Unauthorized("token expired", errors.New("exp"))))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, ErrorBody{Code: "UNAUTHORIZED", Message: "token expired"}, decodeError(t, rr))

	rr = httptest.NewRecorder()
	WriteError(rr, errors.New("pq: relation does not exist"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "internal error", decodeError(t, rr).Message)
}

func TestData(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusOK, map[string]int{"total": 2100})
	require.JSONEq(t, `{"data":{"total":2100}}`, rr.Body.String())
}
