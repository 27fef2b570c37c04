// Package profile identifies anonymous viewer profiles. A profile stands in
// for a browser profile: it scopes watch progress and library lists, and it
// carries no credentials or roles.
package profile

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the signed profile token.
const CookieName = "movieon_profile"

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 365 * 24 * time.Hour

type ctxKeyProfileID struct{}

func IDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyProfileID{}).(string)
	return v, ok && v != ""
}

// WithID injects a profile id into context. Useful for testing.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyProfileID{}, id)
}

type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs and verifies profile tokens with HS256.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
}

func (i Issuer) Issue(profileID string, now time.Time) (string, error) {
	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   profileID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
}

func (i Issuer) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return i.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware resolves the profile from a Bearer header or the profile cookie.
// Requests without a valid token get a fresh profile and a Set-Cookie, so a
// viewer is never rejected.
func Middleware(iss Issuer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := fromRequest(iss, r); ok {
				next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
				return
			}
			id := uuid.NewString()
			if tok, err := iss.Issue(id, time.Now()); err == nil {
				ttl := iss.TTL
				if ttl <= 0 {
					ttl = DefaultTTL
				}
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    tok,
					Path:     "/",
					MaxAge:   int(ttl / time.Second),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

func fromRequest(iss Issuer, r *http.Request) (string, bool) {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if claims, err := iss.Parse(strings.TrimSpace(parts[1])); err == nil {
				return claims.Subject, true
			}
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		if claims, err := iss.Parse(c.Value); err == nil {
			return claims.Subject, true
		}
	}
	return "", false
}
