package gateway

import (
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing x-access-token header")
	ErrInvalidToken = errors.New("invalid access token")
	ErrForbidden    = errors.New("user is not in an allowed group")
)

// groupClaims lists the claims that may carry group membership, in lookup order.
var groupClaims = []string{"cognito:groups", "groups"}

// Authenticator verifies HS256 access tokens and checks group membership.
type Authenticator struct {
	secret  []byte
	allowed map[string]struct{}
}

// NewAuthenticator returns nil when secret is empty, which disables auth.
func NewAuthenticator(secret string, allowedGroups []string) *Authenticator {
	if secret == "" {
		return nil
	}
	a := &Authenticator{secret: []byte(secret), allowed: make(map[string]struct{}, len(allowedGroups))}
	for _, g := range allowedGroups {
		a.allowed[g] = struct{}{}
	}
	return a
}

// Verify parses token and returns ErrInvalidToken or ErrForbidden on failure.
func (a *Authenticator) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}

	if len(a.allowed) == 0 {
		return nil
	}
	for _, g := range tokenGroups(claims) {
		if _, ok := a.allowed[g]; ok {
			return nil
		}
	}
	return ErrForbidden
}

func tokenGroups(claims jwt.MapClaims) []string {
	for _, name := range groupClaims {
		switch v := claims[name].(type) {
		case string:
			return []string{v}
		case []interface{}:
			groups := make([]string, 0, len(v))
			for _, g := range v {
				if s, ok := g.(string); ok {
					groups = append(groups, s)
				}
			}
			return groups
		}
	}
	return nil
}

// middleware rejects requests without a valid token. A nil Authenticator passes everything.
func (a *Authenticator) middleware(next nethttp.Handler) nethttp.Handler {
	if a == nil {
		return next
	}
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		err := a.Verify(r.Header.Get("x-access-token"))
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrForbidden):
			writeError(w, nethttp.StatusForbidden, err.Error())
		default:
			writeError(w, nethttp.StatusUnauthorized, err.Error())
		}
	})
}
