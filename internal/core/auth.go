package core

// staticAuth reports a fixed user, configured at startup.
type staticAuth struct {
	userID string
}

// NewStaticAuth returns an AuthProvider that is signed in as userID, or
// signed out when userID is empty.
func NewStaticAuth(userID string) AuthProvider {
	return staticAuth{userID: userID}
}

func (a staticAuth) CurrentUser() (string, bool) {
	return a.userID, a.userID != ""
}
