package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func ecJWK(kid string, pub *ecdsa.PublicKey) jwk {
	return jwk{Kty: "EC", Kid: kid, Crv: "P-256", X: b64(pub.X.FillBytes(make([]byte, 32))), Y: b64(pub.Y.FillBytes(make([]byte, 32)))}
}

// jwksServer publishes keys and counts fetches.
func jwksServer(t *testing.T, keys ...jwk) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string][]jwk{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestJWKPublicKey(t *testing.T) {
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pub, err := ecJWK("ec-1", &ec.PublicKey).publicKey()
	require.NoError(t, err)
	assert.True(t, ec.PublicKey.Equal(pub))

	rsaKey, err := jwk{Kty: "RSA", N: b64([]byte{0xc3, 0x5a, 0x10, 0x7f, 0x22, 0x91}), E: "AQAB"}.publicKey()
	require.NoError(t, err)
	assert.Equal(t, 65537, rsaKey.(*rsa.PublicKey).E)

	bad := []jwk{
		{Kty: "RSA", N: "!!", E: "AQAB"},
		{Kty: "EC", Crv: "P-384", X: "AA", Y: "AA"},
		{Kty: "EC", Crv: "P-256", X: b64(big.NewInt(1).Bytes()), Y: b64(big.NewInt(2).Bytes())},
		{Kty: "oct"},
	}
	for _, k := range bad {
		_, err := k.publicKey()
		assert.Error(t, err, "%+v", k)
	}
}

func TestKeySet_CachesAndRefetchesUnknownKid(t *testing.T) {
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv, hits := jwksServer(t, ecJWK("ec-1", &ec.PublicKey))

	now := time.Date(2026, 3, 12, 7, 0, 0, 0, time.UTC)
	ks := NewKeySet(srv.URL, time.Minute)
	ks.now = func() time.Time { return now }
	ctx := context.Background()

	_, err = ks.Key(ctx, "ec-1")
	require.NoError(t, err)
	_, err = ks.Key(ctx, "ec-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load(), "second lookup served from cache")

	_, err = ks.Key(ctx, "rotated")
	assert.Error(t, err)
	assert.EqualValues(t, 1, hits.Load(), "unknown kid within refresh interval")

	now = now.Add(minRefresh)
	_, err = ks.Key(ctx, "rotated")
	assert.Error(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestJWTMiddleware_ES256FromJWKS(t *testing.T) {
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv, _ := jwksServer(t, ecJWK("supabase-1", &ec.PublicKey))

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims())
	tok.Header["kid"] = "supabase-1"
	signed, err := tok.SignedString(ec)
	require.NoError(t, err)

	mw := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customer/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	c := e.NewContext(req, httptest.NewRecorder())
	var uid string
	require.NoError(t, mw(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return nil
	})(c))
	assert.Equal(t, testUserID, uid)

	hs := createTestToken(t, validClaims(), testSigningKey)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/customer/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+hs)
	c = e.NewContext(req, httptest.NewRecorder())
	expectStatus(t, mw(func(c echo.Context) error { return nil })(c), http.StatusUnauthorized)
}
