package session

// State is the session manager's lifecycle state.
//
// Transitions: Uninitialized → Loading → {Authenticated, Anonymous};
// Authenticated → Anonymous via logout or irrecoverable refresh failure;
// Anonymous → Authenticated only via a successful login. There is no
// transition back to Loading once bootstrap completes.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the in-memory authentication state. Invariant:
// State == StateAuthenticated implies Token is non-empty.
type Session struct {
	Token string
	State State
}

// Authenticated reports a determined, logged-in session.
func (s Session) Authenticated() bool { return s.State == StateAuthenticated }

// Known reports whether bootstrap has determined the state yet.
func (s Session) Known() bool {
	return s.State == StateAuthenticated || s.State == StateAnonymous
}
