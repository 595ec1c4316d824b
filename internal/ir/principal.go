package ir

// Principal is an opaque caller or canister identity.
type Principal string

// Anonymous is the distinguished principal for unsigned calls.
// Methods marked reject_anonymous refuse it without executing.
const Anonymous Principal = "anonymous"

// IsAnonymous reports whether the principal is the anonymous identity.
// The zero value counts as anonymous: an unset caller is an unsigned one.
func (p Principal) IsAnonymous() bool {
	return p == "" || p == Anonymous
}
