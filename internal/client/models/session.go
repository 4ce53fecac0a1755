package models

// Session is the authenticated identity the client currently holds. Token and
// User are either both set or both empty.
type Session struct {
	Token string
	User  *UserProfile
}

func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}
