package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return i
}

var testUser = model.User{ID: 42, Email: "ana@example.com", Rol: model.RoleAdmin}

func TestNewIssuerRejectsBadSecrets(t *testing.T) {
	if _, err := NewIssuer("", "x", 0, 0); err == nil {
		t.Fatal("empty access secret accepted")
	}
	if _, err := NewIssuer("same", "same", 0, 0); err == nil {
		t.Fatal("identical secrets accepted")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	i := testIssuer(t)
	token, exp, err := i.IssueAccess(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) < 14*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}
	claims, err := i.VerifyAccess(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("subject = %v (%v), want 42", id, err)
	}
	if claims.Email != testUser.Email || claims.Rol != model.RoleAdmin {
		t.Fatalf("claims %+v", claims)
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	i := testIssuer(t).WithClock(func() time.Time { return now })

	token, _, err := i.IssueAccess(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = base.Add(15*time.Minute - time.Second)
	if _, err := i.VerifyAccess(token); err != nil {
		t.Fatalf("still-valid token rejected: %v", err)
	}

	now = base.Add(15*time.Minute + time.Second)
	_, err = i.VerifyAccess(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestRefreshTokenCarriesSessionID(t *testing.T) {
	i := testIssuer(t)
	token, sid, _, err := i.IssueRefresh(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sid == "" {
		t.Fatal("empty session id")
	}
	claims, err := i.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SessionID != sid {
		t.Fatalf("sid %q != %q", claims.SessionID, sid)
	}
	// Two tokens for the same user never share a session id.
	_, sid2, _, _ := i.IssueRefresh(testUser)
	if sid2 == sid {
		t.Fatal("session ids collide")
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	i := testIssuer(t)
	access, _, _ := i.IssueAccess(testUser)
	refresh, _, _, _ := i.IssueRefresh(testUser)

	if _, err := i.VerifyRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token verified as refresh: %v", err)
	}
	if _, err := i.VerifyAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token verified as access: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	a := testIssuer(t)
	b, _ := NewIssuer("other-access", "other-refresh", 0, 0)
	token, _, _ := b.IssueAccess(testUser)
	if _, err := a.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("foreign token accepted: %v", err)
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("hash not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("distinct tokens share hash")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("not a sha256 hex digest")
	}
}
