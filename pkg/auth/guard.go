package auth

// Access is the protection level of a route.
type Access int

const (
	Public Access = iota
	Protected
	AdminOnly
)

// Decision is the guard's verdict for one navigation.
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	default:
		return "deny"
	}
}

// Guard decides whether the current identity may open a route. It holds no
// state of its own: every decision reads the session, so sign-in and
// sign-out apply to the very next navigation.
type Guard struct {
	session *Session
}

// NewGuard creates a guard reading session.
func NewGuard(session *Session) *Guard {
	return &Guard{session: session}
}

// Decide returns the verdict for a route with the given access level.
// Signed-out users are sent to the login page; signed-in non-administrators
// are denied administrator routes.
func (g *Guard) Decide(access Access) Decision {
	return DecideFor(access, g.session.Current())
}

// DecideFor is Decide for an explicit identity.
func DecideFor(access Access, id *Identity) Decision {
	switch access {
	case Public:
		return Allow
	case AdminOnly:
		if id == nil {
			return RedirectLogin
		}
		if !id.IsAdmin() {
			return Deny
		}
		return Allow
	default:
		if id == nil {
			return RedirectLogin
		}
		return Allow
	}
}
