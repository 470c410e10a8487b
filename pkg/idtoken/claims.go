package idtoken

import (
	"encoding/json"
	"fmt"
	"time"
)

// Audience tolerates both wire shapes of the aud claim: a single string or an
// array of strings.
type Audience []string

func (a *Audience) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = Audience{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("aud is neither a string nor a string array: %w", err)
	}

	*a = Audience(many)

	return nil
}

func (a Audience) Contains(clientID string) bool {
	for _, aud := range a {
		if aud == clientID {
			return true
		}
	}

	return false
}

// Claims are the validated contents of an ID token. Immutable once decoded.
type Claims struct {
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	UserID   string   `json:"legacy_user_id"`
	Audience Audience `json:"aud"`
	Expiry   int64    `json:"exp"`
	Nonce    string   `json:"nonce,omitempty"`
	AMR      []string `json:"amr,omitempty"`
}

func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Expiry, 0)
}

func (c Claims) HasAMR(value string) bool {
	for _, amr := range c.AMR {
		if amr == value {
			return true
		}
	}

	return false
}
