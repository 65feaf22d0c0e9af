// Package testhelpers provides utilities for testing tagging console components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// GenerateTestJWT creates an access token shaped like the backend's, for
// use when signature verification is disabled. The token has a valid
// structure but no signature (alg: none).
func GenerateTestJWT(userID int, username, role string, expiresAt time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{
		"sub":      username,
		"uid":      userID,
		"username": username,
		"role":     role,
	}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	payload, _ := json.Marshal(claims)

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}
