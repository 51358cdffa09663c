package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-galeri/internal/common"
)

// TokenVerifier checks bearer tokens issued by the account service and
// returns the buyer id carried in the subject claim.
type TokenVerifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewTokenVerifier builds an HS256 verifier.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{
		Secret:    []byte(secret),
		Issuer:    strings.TrimSpace(issuer),
		Audience:  strings.TrimSpace(audience),
		ClockSkew: 30 * time.Second,
	}
}

// ParseAccessToken validates token and returns its subject.
func (v *TokenVerifier) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized("missing token", nil)
	}
	if v == nil || len(v.Secret) == 0 {
		return "", unauthorized("invalid token", errors.New("auth: verifier not configured"))
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if algorithm != jwa.HS256 {
		return "", unauthorized("invalid token", fmt.Errorf("auth: unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if err := jwt.Validate(parsed, v.validateOptions()...); err != nil {
		return "", unauthorized("invalid token", err)
	}
	subject := strings.TrimSpace(parsed.Subject())
	if subject == "" {
		return "", unauthorized("invalid token", errors.New("auth: token has no subject"))
	}
	return subject, nil
}

func (v *TokenVerifier) validateOptions() []jwt.ValidateOption {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return options
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("auth: token missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}

func unauthorized(msg string, err error) error {
	return common.Unauthorized(msg, err)
}
