package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims describes the identity a test token asserts. SubjectID becomes
// the requester id on submitted requests, TenantID scopes storage, and Roles
// drive capability resolution through the policy file.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer stands in for the identity provider: it signs tokens with a
// throwaway RSA key and publishes the matching JWKS over httptest so the
// server verifies them exactly as it would in production.
type tokenIssuer struct {
	key      *rsa.PrivateKey
	keyID    string
	jwks     *httptest.Server
	issuer   string
	audience string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	ti := &tokenIssuer{
		key:      key,
		keyID:    "integration-signer",
		issuer:   "https://auth.test.stagegate.dev",
		audience: "stagegate-test",
	}

	keySet := map[string]any{
		"keys": []map[string]any{{
			"kid": ti.keyID,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	ti.jwks = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(keySet)
	}))
	t.Cleanup(ti.jwks.Close)

	return ti
}

// GenerateToken signs a token valid for one hour.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	return ti.sign(claims, time.Hour)
}

// GenerateExpiredToken signs a token whose validity window ended an hour ago,
// beyond any clock-skew leeway the server grants.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	return ti.sign(claims, -time.Hour)
}

func (ti *tokenIssuer) sign(claims TestClaims, ttl time.Duration) string {
	now := time.Now()
	mc := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(now.Add(min(ttl-time.Hour, 0))),
		"exp":       jwt.NewNumericDate(now.Add(ttl)),
		"sub":       claims.SubjectID,
		"tenant_id": claims.TenantID,
		"email":     claims.Email,
	}
	if len(claims.Roles) > 0 {
		// []any, the shape roles take after a real JSON round trip.
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mc["roles"] = roles
	}
	maps.Copy(mc, claims.Extra)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	token.Header["kid"] = ti.keyID

	signed, err := token.SignedString(ti.key)
	if err != nil {
		panic("sign token: " + err.Error())
	}
	return signed
}

// JWKSURL returns the address of the published key set.
func (ti *tokenIssuer) JWKSURL() string { return ti.jwks.URL }

// Issuer returns the iss claim tokens are signed with.
func (ti *tokenIssuer) Issuer() string { return ti.issuer }

// Audience returns the aud claim tokens are signed with.
func (ti *tokenIssuer) Audience() string { return ti.audience }
