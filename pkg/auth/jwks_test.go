package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createTestToken creates an unsigned JWT for testing.
func createTestToken(claims *Claims) string {
	header := map[string]string{
		"alg": "none",
		"typ": "JWT",
	}
	headerJSON, _ := json.Marshal(header)
	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)

	claimsJSON, _ := json.Marshal(claims)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)

	// header.claims. with an empty signature
	return headerB64 + "." + claimsB64 + "."
}

func TestNewJWKSClient_Unverified(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	if client == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestNewJWKSClient_VerificationWithoutEndpoints(t *testing.T) {
	_, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: true})
	if err == nil {
		t.Fatal("expected error when verification is enabled without endpoints")
	}
}

func TestJWKSClient_ValidateToken_Unverified(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	token := createTestToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "aida",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:   7,
		Username: "aida",
		Role:     "editor",
	})

	claims, err := client.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != 7 {
		t.Errorf("expected UserID 7, got %d", claims.UserID)
	}
	if claims.Username != "aida" {
		t.Errorf("expected Username 'aida', got %q", claims.Username)
	}
	if claims.Role != "editor" {
		t.Errorf("expected Role 'editor', got %q", claims.Role)
	}
}

func TestJWKSClient_ValidateToken_ExpiredStillDecodes(t *testing.T) {
	// Expiry is the resolver's decision, not the decoder's.
	client, _ := NewJWKSClient(context.Background(), &JWKSConfig{})

	token := createTestToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Username: "aida",
		Role:     "admin",
	})

	claims, err := client.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("expected expiry to be decoded")
	}
}

func TestJWKSClient_ValidateToken_Malformed(t *testing.T) {
	client, _ := NewJWKSClient(context.Background(), &JWKSConfig{})

	for _, token := range []string{"", "not-a-token", "a.b", "!!!.???.###"} {
		if _, err := client.ValidateToken(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestClaims_UserFallsBackToSubject(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bakyt"}, Role: "viewer"}

	u := c.user()
	if u.Username != "bakyt" {
		t.Errorf("expected username from subject, got %q", u.Username)
	}
	if !u.IsActive {
		t.Error("expected user decoded from a token to be active")
	}
}
