package oauth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAccessToken(t *testing.T) {
	signed, jti, err := GenerateAccessToken("assistant-platform", "smarthome", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if jti == "" {
		t.Error("GenerateAccessToken() returned empty jti")
	}

	claims, err := ParseAccessToken(signed, testSecret)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.ClientID != "assistant-platform" {
		t.Errorf("ClientID = %q, want assistant-platform", claims.ClientID)
	}
	if claims.Scope != "smarthome" {
		t.Errorf("Scope = %q, want smarthome", claims.Scope)
	}
	if claims.ID != jti {
		t.Errorf("claims.ID = %q, want %q", claims.ID, jti)
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	signed, _, err := GenerateAccessToken("assistant-platform", "smarthome", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := ParseAccessToken(signed, testSecret); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ParseAccessToken() error = %v, want ErrUnauthorized", err)
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	signed, _, err := GenerateAccessToken("assistant-platform", "smarthome", "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := ParseAccessToken(signed, testSecret); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ParseAccessToken() error = %v, want ErrUnauthorized", err)
	}
}

func TestGenerateAuthCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateAuthCode()
		if err != nil {
			t.Fatalf("GenerateAuthCode() error = %v", err)
		}
		if len(code) != 64 {
			t.Fatalf("code length = %d, want 64 hex chars", len(code))
		}
		if seen[code] {
			t.Fatal("GenerateAuthCode() produced a duplicate")
		}
		seen[code] = true
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("HashToken() not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("HashToken() collision on different inputs")
	}
}
