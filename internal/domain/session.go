package domain

// Session is the client's record of whether, and with what credential, it is
// authenticated. The zero value is the absent session.
type Session struct {
	Credential string
}

// Present reports whether the session carries a credential.
func (s Session) Present() bool {
	return s.Credential != ""
}

// AuthMode selects which authentication endpoint is used.
type AuthMode string

const (
	// AuthModeLogin exchanges credentials for a token.
	AuthModeLogin AuthMode = "login"
	// AuthModeSignup registers a new account without establishing a session.
	AuthModeSignup AuthMode = "signup"
)

// Valid reports whether m is a known mode.
func (m AuthMode) Valid() bool {
	return m == AuthModeLogin || m == AuthModeSignup
}

// AuthOutcome distinguishes an established session from an accepted signup.
type AuthOutcome int

const (
	// SessionEstablished means a credential was issued and persisted.
	SessionEstablished AuthOutcome = iota + 1
	// SignupAccepted means the account exists but the caller must still log in.
	SignupAccepted
)

// AuthResult is the successful outcome of an authentication attempt.
type AuthResult struct {
	Outcome AuthOutcome
	Session Session
	Notice  string
}

// View is the top-level screen shown for a session.
type View string

const (
	ViewAuth View = "auth"
	ViewChat View = "chat"
)

// View selects the auth screen for the absent session and chat otherwise.
func (s Session) View() View {
	if s.Present() {
		return ViewChat
	}
	return ViewAuth
}

// String returns the wire name of the outcome.
func (o AuthOutcome) String() string {
	switch o {
	case SessionEstablished:
		return "session_established"
	case SignupAccepted:
		return "signup_accepted"
	}
	return "unknown"
}
