package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-galeri/internal/common"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, key []byte, alg jwa.SignatureAlgorithm, mutate func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	now := time.Now()
	b := jwt.NewBuilder().
		Issuer("accounts").
		Audience([]string{"galeri"}).
		Subject("buyer-1").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute))
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, key))
	require.NoError(t, err)
	return string(signed)
}

func TestParseAccessToken(t *testing.T) {
	v := NewTokenVerifier(string(testSecret), "accounts", "galeri")
	userID, err := v.ParseAccessToken(signToken(t, testSecret, jwa.HS256, nil))
	require.NoError(t, err)
	require.Equal(t, "buyer-1", userID)
}

func TestParseAccessTokenRejects(t *testing.T) {
	v := NewTokenVerifier(string(testSecret), "accounts", "galeri")
	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"wrong key":      signToken(t, []byte("another-secret-another-secret-00"), jwa.HS256, nil),
		"wrong alg":      signToken(t, testSecret, jwa.HS512, nil),
		"wrong issuer":   signToken(t, testSecret, jwa.HS256, func(b *jwt.Builder) *jwt.Builder { return b.Issuer("evil") }),
		"wrong audience": signToken(t, testSecret, jwa.HS256, func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"other"}) }),
		"expired": signToken(t, testSecret, jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(time.Now().Add(-2 * time.Hour)).NotBefore(time.Now().Add(-2 * time.Hour)).Expiration(time.Now().Add(-time.Hour))
		}),
		"no subject": signToken(t, testSecret, jwa.HS256, func(b *jwt.Builder) *jwt.Builder { return b.Subject("") }),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ParseAccessToken(token)
			require.Error(t, err)
			appErr, ok := common.AsAppError(err)
			require.True(t, ok)
			require.Equal(t, http.StatusUnauthorized, appErr.Status)
		})
	}

	var unset *TokenVerifier
	_, err := unset.ParseAccessToken(signToken(t, testSecret, jwa.HS256, nil))
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	m := Middleware{Tokens: NewTokenVerifier(string(testSecret), "accounts", "galeri"), AccessCookie: "access_token"}
	var seen string
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	token := signToken(t, testSecret, jwa.HS256, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "buyer-1", seen)

	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "buyer-1", seen)

	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)

		var body struct {
			Error common.ErrorBody `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "UNAUTHORIZED", body.Error.Code)
	}
}
