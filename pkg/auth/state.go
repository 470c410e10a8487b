package auth

// StateKind enumerates the authenticator lifecycle positions.
type StateKind int

const (
	StateLoggedOut StateKind = iota
	StateLoggingIn
	StateLoggedIn
)

func (k StateKind) String() string {
	switch k {
	case StateLoggedOut:
		return "logged-out"
	case StateLoggingIn:
		return "logging-in"
	case StateLoggedIn:
		return "logged-in"
	default:
		return "unknown"
	}
}

// State is the authenticator position. A user value is attached only in the
// logged-in position.
type State struct {
	kind StateKind
	user *User
}

func loggedOut() State          { return State{kind: StateLoggedOut} }
func loggingIn() State          { return State{kind: StateLoggingIn} }
func loggedIn(u *User) State    { return State{kind: StateLoggedIn, user: u} }
func (s State) Kind() StateKind { return s.kind }

// User returns the logged-in user, or ok=false in any other position.
func (s State) User() (*User, bool) {
	if s.kind != StateLoggedIn || s.user == nil {
		return nil, false
	}

	return s.user, true
}

// authState carries the per-attempt secrets of one authorization round trip.
// It lives in memory only and is discarded when the attempt settles.
type authState struct {
	id           string
	state        string
	nonce        string
	codeVerifier string
	mfa          string
}
