package ir

import (
	"fmt"
	"strings"
)

// MethodRef is a typed reference to a canister method.
// Format: "canister.method".
type MethodRef string

// NewMethodRef builds a MethodRef from its parts.
func NewMethodRef(canister, method string) MethodRef {
	return MethodRef(canister + "." + method)
}

// Split returns the canister and method parts.
// Errors if the ref is not exactly "canister.method" with both parts
// non-empty.
func (r MethodRef) Split() (canister, method string, err error) {
	parts := strings.Split(string(r), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid method ref %q: want \"canister.method\"", string(r))
	}
	return parts[0], parts[1], nil
}

// Canister returns the canister part, or "" if the ref is malformed.
func (r MethodRef) Canister() string {
	c, _, err := r.Split()
	if err != nil {
		return ""
	}
	return c
}
