// Package auth implements the credential verifier and token issuer: bcrypt
// password verification, Google ID-token verification, and issuance/
// verification of the access and refresh JWTs.
package auth

import "errors"

// Sentinel errors for the authentication taxonomy. Handlers map these onto
// HTTP statuses and normalize the client-facing message so that the response
// never reveals whether an email exists or which check failed.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidIdentityToken covers any defect in a third-party ID token:
	// signature, issuer, audience or expiry.
	ErrInvalidIdentityToken = errors.New("invalid identity token")
	// ErrTokenExpired means the token verified but its exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid means the token is malformed or its signature does not
	// match the expected secret.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrSessionRevoked means a refresh token verified cryptographically but
	// its server-side session has been invalidated.
	ErrSessionRevoked = errors.New("session revoked")
)
