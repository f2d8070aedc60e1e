package api

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("secret", "loopdeck", "alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	subject, err := ParseToken("secret", "loopdeck", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("expected alice, got %q", subject)
	}
}

func TestParseTokenRejects(t *testing.T) {
	good, err := IssueToken("secret", "loopdeck", "alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired, err := IssueToken("secret", "loopdeck", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	otherIssuer, err := IssueToken("secret", "someone-else", "alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	cases := map[string]struct{ secret, token string }{
		"wrong secret": {"other", good},
		"expired":      {"secret", expired},
		"issuer":       {"secret", otherIssuer},
		"garbage":      {"secret", "not-a-token"},
	}
	for name, tc := range cases {
		if _, err := ParseToken(tc.secret, "loopdeck", tc.token); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken(" ", "loopdeck", "alice", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("unexpected parse: %q %v", tok, ok)
	}
	for _, header := range []string{"", "abc", "Basic abc", "Bearer a b"} {
		if _, ok := BearerToken(header); ok {
			t.Errorf("expected %q to be rejected", header)
		}
	}
}
