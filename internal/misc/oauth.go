// Package misc holds OAuth helpers shared by the broker: state nonces and the
// state envelope carried through the provider redirect.
package misc

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidState is returned when an OAuth state envelope cannot be decoded.
var ErrInvalidState = errors.New("invalid oauth state")

// GenerateRandomState generates a cryptographically secure, URL-safe random state
// for OAuth2 flows to prevent CSRF attacks.
//
// Returns:
//   - string: A 43-character base64url state string
//   - error: An error if the random source fails
func GenerateRandomState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// StateEnvelope is the payload carried through the provider in the state parameter.
// It binds the random nonce to the session that started the flow.
type StateEnvelope struct {
	State  string `json:"state"`
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

// EncodeState serializes the envelope as base64url JSON.
func EncodeState(env StateEnvelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal oauth state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeState parses a state produced by EncodeState. Padded and unpadded
// encodings are both accepted since some providers strip trailing '='.
func DecodeState(encoded string) (StateEnvelope, error) {
	var env StateEnvelope
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return env, fmt.Errorf("%w: empty", ErrInvalidState)
	}
	data, err := base64.URLEncoding.DecodeString(trimmed)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(trimmed, "="))
		if err != nil {
			return env, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
	}
	if err = json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if env.State == "" {
		return env, fmt.Errorf("%w: missing nonce", ErrInvalidState)
	}
	return env, nil
}
