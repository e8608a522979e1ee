package auth

import (
	"crypto/rand"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a bcrypt hash of a random string nobody knows. When a login
// targets an unknown email we still run one bcrypt comparison against it so
// that the request costs roughly the same as a real mismatch and response
// timing cannot be used to enumerate accounts. The baked-in value is cost 12,
// matching the default work factor; SetBurnCost replaces it when BCRYPT_COST
// is configured differently.
var dummyHash = "$2a$12$K7qhkcXAPpCJBFzP4a0pXuT1h9kGkv1dE0yIcmhqOQXyp0PzXhyEq"

// SetBurnCost regenerates the burn hash at the given cost. Called once at
// startup so the unknown-email comparison keeps the same latency as a real
// mismatch under a non-default work factor.
func SetBurnCost(cost int) error {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return err
	}
	b, err := bcrypt.GenerateFromPassword(secret[:], cost)
	if err != nil {
		return err
	}
	dummyHash = string(b)
	return nil
}

// HashPassword returns a bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash and a plain password. A nil hash
// (Google-only account) burns a dummy comparison and fails.
func VerifyPassword(hash *string, plain string) bool {
	if hash == nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(plain)) == nil
}

// BurnPasswordCheck performs a throwaway bcrypt comparison. Called on the
// unknown-email path of login to keep its latency comparable to the
// wrong-password path.
func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plain))
}

// ValidatePassword enforces the registration password policy: at least eight
// characters with an upper-case letter, a lower-case letter and a digit.
// It returns machine-readable reason codes for each unmet requirement.
func ValidatePassword(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < 8 {
		reasons = append(reasons, "too_short")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		reasons = append(reasons, "missing_upper")
	}
	if !hasLower {
		reasons = append(reasons, "missing_lower")
	}
	if !hasDigit {
		reasons = append(reasons, "missing_digit")
	}
	return len(reasons) == 0, reasons
}
