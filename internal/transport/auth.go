package transport

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stagegate/stagegate/internal/config"
	"github.com/stagegate/stagegate/model"
)

// Every call into the approval API is made on behalf of a requester or an
// approver, so the bearer token is the sole source of identity: the subject
// and tenant extracted from its claims scope request storage, and its roles
// feed capability resolution. Nothing downstream re-checks the token.

// jwkDocument is one entry of a JWKS response. Only the members needed to
// rebuild RSA and EC public keys are decoded.
type jwkDocument struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// publicKey rebuilds the crypto.PublicKey described by the document.
func (d jwkDocument) publicKey() (crypto.PublicKey, error) {
	switch d.Kty {
	case "RSA":
		n, err := b64Int(d.N)
		if err != nil {
			return nil, fmt.Errorf("modulus: %w", err)
		}
		e, err := b64Int(d.E)
		if err != nil {
			return nil, fmt.Errorf("exponent: %w", err)
		}
		if n.Sign() == 0 || e.Sign() == 0 {
			return nil, errors.New("rsa key missing modulus or exponent")
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		var curve elliptic.Curve
		switch d.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", d.Crv)
		}
		x, err := b64Int(d.X)
		if err != nil {
			return nil, fmt.Errorf("x coordinate: %w", err)
		}
		y, err := b64Int(d.Y)
		if err != nil {
			return nil, fmt.Errorf("y coordinate: %w", err)
		}
		if x.Sign() == 0 || y.Sign() == 0 {
			return nil, errors.New("ec key missing coordinates")
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", d.Kty)
	}
}

func b64Int(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// JWKSClient caches the identity provider's signing keys, keyed by kid.
// Verification keeps working through provider outages as long as a previously
// fetched key is still cached.
type JWKSClient struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// NewJWKSClient returns a client for the given JWKS endpoint. Keys are
// re-fetched after ttl, and no more often than every five minutes.
func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	return &JWKSClient{
		url:        url,
		ttl:        ttl,
		minRefresh: 5 * time.Minute,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]crypto.PublicKey),
	}
}

// GetKey returns the verification key for kid, fetching the key set when the
// cache is cold or stale. When the endpoint is unreachable a cached key is
// served instead of failing the request.
func (c *JWKSClient) GetKey(kid string) (crypto.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	stale := time.Since(c.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if ok && !stale {
		return key, nil
	}

	if err := c.fetchKeys(); err != nil {
		c.mu.RLock()
		key, ok = c.keys[kid]
		c.mu.RUnlock()
		if ok {
			slog.Warn("identity: key set refresh failed, serving cached key",
				"kid", kid, "error", err)
			return key, nil
		}
		return nil, fmt.Errorf("identity: key set unavailable: %w", err)
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("identity: no signing key with kid %q", kid)
	}
	return key, nil
}

func (c *JWKSClient) fetchKeys() error {
	c.mu.RLock()
	recent := time.Since(c.fetchedAt) < c.minRefresh && len(c.keys) > 0
	c.mu.RUnlock()
	if recent {
		// An unknown kid cannot force a fetch storm against the provider.
		return nil
	}

	resp, err := c.httpClient.Get(c.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var doc struct {
		Keys []jwkDocument `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("identity: skipping unusable key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// JWTAuthenticator verifies the bearer token on every API request against the
// configured issuer, audience, and algorithm allow-list, then places the
// verified claims in the request context for BuildRequestContext to turn into
// the requester identity. Tokens must carry exp; a 30 second leeway absorbs
// clock skew between the provider and this service.
func JWTAuthenticator(cfg config.IdentityConfig, jwks *JWKSClient) func(http.Handler) http.Handler {
	keyFor := func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return jwks.GetKey(kid)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, envErr := bearerToken(r)
			if envErr != nil {
				WriteError(w, envErr)
				return
			}

			token, err := jwt.Parse(raw, keyFor,
				jwt.WithValidMethods(cfg.Algorithms),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(30*time.Second),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(authFailureMessage(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("invalid token"))
				return
			}

			ctx := WithClaims(r.Context(), map[string]any(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, *model.ErrorEnvelope) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", model.NewUnauthorizedError("missing authorization header")
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", model.NewUnauthorizedError("authorization header is not a bearer token")
	}
	return raw, nil
}

// authFailureMessage maps a verification failure to a client-safe message.
// The envelope never echoes parser internals.
func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token not yet valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer not trusted"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "token audience mismatch"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "token missing required claims"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature rejected"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "token signing key not recognized"
	default:
		return "invalid token"
	}
}
