package session

import (
	"time"

	"github.com/schibsted/account-sdk-go/pkg/idtoken"
)

// UserTokens is the token triple owned by a logged-in user. It is replaced
// wholesale on every refresh, never mutated field by field, so access token,
// refresh token and claims stay mutually consistent.
type UserTokens struct {
	AccessToken   string         `json:"accessToken"`
	RefreshToken  string         `json:"refreshToken"`
	IDToken       string         `json:"idToken,omitempty"`
	IDTokenClaims idtoken.Claims `json:"idTokenClaims"`
	Expiration    time.Time      `json:"expiration"`
}

// UserSession is the persisted form of a login, keyed by client id in the
// shared storage namespace. UpdatedAt orders sessions when several client ids
// share one namespace.
type UserSession struct {
	ClientID   string     `json:"clientId"`
	UserTokens UserTokens `json:"userTokens"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// MostRecent picks the session with the latest UpdatedAt. Used for cross-app
// session discovery where every app's session lives in the same namespace.
func MostRecent(sessions []UserSession) (UserSession, bool) {
	if len(sessions) == 0 {
		return UserSession{}, false
	}

	newest := sessions[0]
	for _, s := range sessions[1:] {
		if s.UpdatedAt.After(newest.UpdatedAt) {
			newest = s
		}
	}

	return newest, true
}
