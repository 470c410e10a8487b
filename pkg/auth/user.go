package auth

import "github.com/schibsted/account-sdk-go/pkg/session"

// User is a logged-in account holder together with the tokens proving it.
type User struct {
	Tokens session.UserTokens
	SDRN   string
}

// UserID is the legacy numeric account id.
func (u *User) UserID() string {
	return u.Tokens.IDTokenClaims.UserID
}

// UUID is the global account id, the id-token subject.
func (u *User) UUID() string {
	return u.Tokens.IDTokenClaims.Subject
}

// Equal reports whether both users denote the same account, compared on the
// stable resource name and the legacy id. Token material is ignored.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}

	return u.SDRN == other.SDRN && u.UserID() == other.UserID()
}
