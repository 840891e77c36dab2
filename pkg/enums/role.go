package enums

import "fmt"

// Role is the coarse caller classification carried in the access token.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub_admin"
	RoleCustomer Role = "customer"
)

var validRoles = []Role{
	RoleAdmin,
	RoleSubAdmin,
	RoleCustomer,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// AccessLevel narrows sub_admin rights. Empty for every other role.
type AccessLevel string

const (
	AccessReadWrite AccessLevel = "read_write"
	AccessReadOnly  AccessLevel = "read_only"
)

func (a AccessLevel) String() string {
	return string(a)
}

// ParseAccessLevel converts raw input into an AccessLevel. Empty input is allowed.
func ParseAccessLevel(value string) (AccessLevel, error) {
	switch AccessLevel(value) {
	case "", AccessReadWrite, AccessReadOnly:
		return AccessLevel(value), nil
	}
	return "", fmt.Errorf("invalid access level %q", value)
}

// IsValid reports whether the value is one of the declared access levels.
func (a AccessLevel) IsValid() bool {
	return a == AccessReadWrite || a == AccessReadOnly
}
