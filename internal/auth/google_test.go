package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "test-client.apps.googleusercontent.com"

// jwksServer publishes a single RSA key the way Google's cert endpoint does,
// and returns a signer for minting matching ID tokens.
func jwksServer(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa: %v", err)
	}
	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-kid",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv, key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-kid"
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "10987654321",
		"email":          "maria@example.com",
		"email_verified": true,
		"given_name":     "María",
		"family_name":    "García",
		"picture":        "https://lh3.example/avatar.png",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
}

func TestGoogleVerifyAccepts(t *testing.T) {
	srv, key := jwksServer(t)
	v, err := NewGoogleVerifier(testClientID, srv.URL)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	defer v.Close()

	id, err := v.Verify(signIDToken(t, key, baseClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Subject != "10987654321" || id.Email != "maria@example.com" {
		t.Fatalf("identity %+v", id)
	}
	if id.Nombre != "María" || id.Apellido != "García" {
		t.Fatalf("names %+v", id)
	}
}

func TestGoogleVerifyRejects(t *testing.T) {
	srv, key := jwksServer(t)
	v, err := NewGoogleVerifier(testClientID, srv.URL)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	defer v.Close()

	mutate := map[string]func(jwt.MapClaims){
		"wrong audience": func(c jwt.MapClaims) { c["aud"] = "someone-else" },
		"wrong issuer":   func(c jwt.MapClaims) { c["iss"] = "https://evil.example" },
		"expired":        func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"unverified email": func(c jwt.MapClaims) {
			c["email_verified"] = false
		},
		"no email": func(c jwt.MapClaims) { delete(c, "email") },
	}
	for name, fn := range mutate {
		claims := baseClaims()
		fn(claims)
		if _, err := v.Verify(signIDToken(t, key, claims)); !errors.Is(err, ErrInvalidIdentityToken) {
			t.Fatalf("%s: err = %v, want ErrInvalidIdentityToken", name, err)
		}
	}

	// A token signed by a key outside the JWKS must fail too.
	stranger, _ := rsa.GenerateKey(rand.Reader, 2048)
	if _, err := v.Verify(signIDToken(t, stranger, baseClaims())); !errors.Is(err, ErrInvalidIdentityToken) {
		t.Fatalf("foreign key: err = %v", err)
	}
}
