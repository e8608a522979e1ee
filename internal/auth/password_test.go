package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	// Minimum cost keeps the test fast.
	hash, err := HashPassword("Password123", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(&hash, "Password123") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(&hash, "Password124") {
		t.Fatal("wrong password accepted")
	}
}

func TestVerifyPasswordNilHash(t *testing.T) {
	// Google-only accounts have no hash; login must fail, never panic.
	if VerifyPassword(nil, "whatever") {
		t.Fatal("nil hash accepted a password")
	}
}

func TestSetBurnCostMatchesWorkFactor(t *testing.T) {
	orig := dummyHash
	t.Cleanup(func() { dummyHash = orig })

	if err := SetBurnCost(5); err != nil {
		t.Fatalf("set burn cost: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(dummyHash))
	if err != nil {
		t.Fatalf("regenerated burn hash is not valid bcrypt: %v", err)
	}
	if cost != 5 {
		t.Fatalf("burn hash cost = %d, want 5", cost)
	}
	// The burn path must still reject everything.
	if VerifyPassword(nil, "anything") {
		t.Fatal("nil hash accepted a password after SetBurnCost")
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		pw      string
		ok      bool
		reasons []string
	}{
		{"Password1", true, nil},
		{"Pa1", false, []string{"too_short"}},
		{"password1", false, []string{"missing_upper"}},
		{"PASSWORD1", false, []string{"missing_lower"}},
		{"Passwords", false, []string{"missing_digit"}},
		{"pw1", false, []string{"too_short", "missing_upper"}},
	}
	for _, c := range cases {
		ok, reasons := ValidatePassword(c.pw)
		if ok != c.ok {
			t.Fatalf("%q: ok = %v, want %v", c.pw, ok, c.ok)
		}
		for _, want := range c.reasons {
			found := false
			for _, got := range reasons {
				if got == want {
					found = true
				}
			}
			if !found {
				t.Fatalf("%q: missing reason %q in %v", c.pw, want, reasons)
			}
		}
	}
}
