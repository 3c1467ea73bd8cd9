package core

import (
	"crypto/subtle"
	"strings"
)

// SecureCompareString compares two strings in constant time.
func SecureCompareString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var weakTokens = []string{
	"password", "secret", "token", "admin", "test", "default",
	"12345", "123456", "password123", "secret123", "admin123",
}

// ValidateAuthToken rejects empty, short or guessable bearer tokens.
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidInput, "authentication token cannot be empty").
			WithGuidance("Provide a valid authentication token.")
	}
	if len(token) < 16 {
		return NewError(ErrInvalidInput, "authentication token is too short").
			WithGuidance("Use a token with at least 16 characters.")
	}

	lower := strings.ToLower(token)
	for _, weak := range weakTokens {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidInput, "authentication token appears to be weak").
				WithGuidance("Use a randomly generated token.")
		}
	}
	return nil
}

// AuthenticateBearer checks an Authorization header of the form
// "Bearer <token>" against the expected token.
func AuthenticateBearer(authHeader, expectedToken string) error {
	if authHeader == "" {
		return NewError(ErrUnauthorized, "missing Authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" {
		return NewError(ErrUnauthorized, "invalid Authorization header format").
			WithGuidance(`Send "Authorization: Bearer <token>".`)
	}
	if !SecureCompareString(token, expectedToken) {
		return NewError(ErrUnauthorized, "invalid bearer token")
	}
	return nil
}
