package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"stablevault/crypto"
	"stablevault/observability/logging"
)

type contextKey string

const (
	contextKeyCaller    contextKey = "vaultd.caller"
	contextKeyRequestID contextKey = "vaultd.request_id"
)

const defaultClockSkew = 2 * time.Minute

// Authenticator verifies HS256 bearer tokens whose subject is the caller's
// bech32 account.
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
}

// NewAuthenticator builds an Authenticator. An empty issuer disables the
// issuer check.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
		skew:   defaultClockSkew,
	}
}

// Issue signs a token for addr valid for ttl.
func (a *Authenticator) Issue(addr crypto.Address, ttl time.Duration, now time.Time) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}
	if addr.IsZero() {
		return "", errors.New("subject required")
	}
	claims := jwt.RegisteredClaims{
		Subject:   addr.String(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tokenString and returns the caller account.
func (a *Authenticator) Verify(tokenString string) (crypto.Address, error) {
	if len(a.secret) == 0 {
		return crypto.Address{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	addr, err := crypto.DecodeAddress(claims.Subject)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("subject: %w", err)
	}
	if addr.IsZero() {
		return crypto.Address{}, errors.New("subject is the null account")
	}
	return addr, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := extractBearer(header)
		if tokenString == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token", "unauthenticated")
			return
		}
		caller, err := a.Verify(tokenString)
		if err != nil {
			loggerFrom(r).Warn("token validation failed",
				slog.String("authorization", logging.MaskAuthorization(header)),
				"error", err)
			writeError(w, r, http.StatusUnauthorized, "invalid token", "unauthenticated")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the authenticated caller.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(crypto.Address)
	return caller, ok && !caller.IsZero()
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
