package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type HS256Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

type VerifierOption func(*HS256Verifier)

// WithIssuer rejects tokens whose iss claim differs from issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *HS256Verifier) { v.issuer = strings.TrimSpace(issuer) }
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *HS256Verifier) { v.leeway = d }
}

func NewHS256Verifier(secret string, opts ...VerifierOption) *HS256Verifier {
	v := &HS256Verifier{secret: []byte(secret)}
	for _, o := range opts {
		o(v)
	}
	return v
}

type accessClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	Ver    int64  `json:"ver"`
	jwt.RegisteredClaims
}

func (v *HS256Verifier) VerifyAccessToken(token string) (TokenClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}

	parsed, err := jwt.ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (any, error) {
		// prevent alg confusion
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, ErrTokenInvalid
	}

	// older tokens carry the user id only in sub
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return TokenClaims{}, ErrTokenInvalid
	}

	return TokenClaims{
		UserID:  uid,
		Role:    claims.Role,
		Ver:     claims.Ver,
		Exp:     claims.ExpiresAt.Time,
		Issuer:  claims.Issuer,
		Subject: claims.Subject,
	}, nil
}
