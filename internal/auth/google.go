package auth

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// googleIssuers are the two issuer values Google uses for ID tokens.
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleIdentity is the subset of a verified Google ID token the rest of the
// system cares about.
type GoogleIdentity struct {
	Subject   string
	Email     string
	Nombre    string
	Apellido  string
	AvatarURL string
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier validates Google ID tokens against Google's published JWKS.
// The key set is fetched lazily and refreshed in the background; an unknown
// kid triggers an immediate refresh to pick up rotated keys.
type GoogleVerifier struct {
	clientID string
	jwks     *keyfunc.JWKS
	now      func() time.Time
}

// NewGoogleVerifier fetches the JWKS from jwksURL and returns a verifier
// bound to the given OAuth client ID (the expected audience).
func NewGoogleVerifier(clientID, jwksURL string) (*GoogleVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logrus.WithError(err).Warn("google jwks refresh failed")
		},
	})
	if err != nil {
		return nil, err
	}
	return &GoogleVerifier{clientID: clientID, jwks: jwks, now: time.Now}, nil
}

// WithClock replaces the verifier's time source. Test hook.
func (v *GoogleVerifier) WithClock(now func() time.Time) *GoogleVerifier {
	v.now = now
	return v
}

// Close stops the background JWKS refresh goroutine.
func (v *GoogleVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Verify checks signature, issuer, audience and expiry of a Google ID token
// and returns the identity it asserts. Every failure collapses into
// ErrInvalidIdentityToken; the specific cause is logged server-side only.
func (v *GoogleVerifier) Verify(credential string) (*GoogleIdentity, error) {
	claims := &googleClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	_, err := parser.ParseWithClaims(credential, claims, v.jwks.Keyfunc)
	if err != nil {
		logrus.WithError(err).Debug("google id token rejected")
		return nil, ErrInvalidIdentityToken
	}
	if !googleIssuers[claims.Issuer] {
		logrus.WithField("iss", claims.Issuer).Debug("google id token: unexpected issuer")
		return nil, ErrInvalidIdentityToken
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, ErrInvalidIdentityToken
	}
	return &GoogleIdentity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Nombre:    claims.GivenName,
		Apellido:  claims.FamilyName,
		AvatarURL: claims.Picture,
	}, nil
}
