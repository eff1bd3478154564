package auth

// UserClaims are the token claims the gateway cares about.
type UserClaims struct {
	Scopes       []UnitPrimitive
	Subject      string
	Issuer       string
	Realm        string
	InstanceID   string
	DuoSeatCount int
}

// User is the authenticated identity for a single request. It is created by
// the authenticator, never mutated, and discarded with the request.
type User struct {
	Authenticated bool
	IsDebug       bool
	Claims        UserClaims
}

// Can reports whether the user may exercise the given primitive. Debug users
// pass unconditionally. Otherwise the primitive must be in the granted scopes
// and the token issuer must not be one of disallowedIssuers.
func (u *User) Can(primitive UnitPrimitive, disallowedIssuers ...string) bool {
	if u.IsDebug {
		return true
	}
	if !u.Authenticated {
		return false
	}
	for _, iss := range disallowedIssuers {
		if u.Claims.Issuer == iss {
			return false
		}
	}
	for _, s := range u.Claims.Scopes {
		if s == primitive {
			return true
		}
	}
	return false
}

// UnitPrimitives returns the granted capability set.
func (u *User) UnitPrimitives() []UnitPrimitive {
	return u.Claims.Scopes
}
