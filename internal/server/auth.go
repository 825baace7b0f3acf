package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ownerKey struct{}

// ownerClaims is the token shape issued by the identity service.
type ownerClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenVerifier turns a bearer token into an owner id.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify validates an HS256 token and returns its owner id.
func (v *TokenVerifier) Verify(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("token verification is not configured")
	}
	var claims ownerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	ownerID := strings.TrimSpace(claims.ID)
	if ownerID == "" {
		ownerID = strings.TrimSpace(claims.Subject)
	}
	if ownerID == "" {
		return "", errors.New("token carries no owner id")
	}
	return ownerID, nil
}

// Sign issues a token for ownerID. Used by tests and the CLI.
func (v *TokenVerifier) Sign(ownerID string, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ownerClaims{ID: ownerID, RegisteredClaims: claims})
	return token.SignedString(v.secret)
}

func requireOwner(verifier *TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "not authorized")
			return
		}
		ownerID, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not authorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, ownerID)))
	})
}

func ownerFrom(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id
}
