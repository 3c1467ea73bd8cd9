package core

import (
	"errors"
	"testing"
)

func TestValidateAuthToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"strong", "a1b2c3d4e5f6g7h8", false},
		{"empty", "", true},
		{"short", "a1b2c3", true},
		{"weak", "password12345678", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAuthToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAuthToken(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
			if err != nil && CodeOf(err) != ErrInvalidInput {
				t.Errorf("code = %s, want %s", CodeOf(err), ErrInvalidInput)
			}
		})
	}
}

func TestAuthenticateBearer(t *testing.T) {
	const expected = "validtokensecret"

	if err := AuthenticateBearer("Bearer "+expected, expected); err != nil {
		t.Fatalf("expected authorized, got %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token " + expected},
		{"no token", "Bearer"},
		{"wrong token", "Bearer wrong"},
	}
	unauthorized := NewError(ErrUnauthorized, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthenticateBearer(tt.header, expected)
			if !errors.Is(err, unauthorized) {
				t.Errorf("AuthenticateBearer(%q) = %v, want an unauthorized error", tt.header, err)
			}
		})
	}
}

func TestSecureCompareString(t *testing.T) {
	if !SecureCompareString("abc", "abc") {
		t.Error("equal strings compared unequal")
	}
	if SecureCompareString("abc", "abd") || SecureCompareString("abc", "abcd") {
		t.Error("different strings compared equal")
	}
}
