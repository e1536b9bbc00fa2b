package domain

import (
	"database/sql/driver"
	"fmt"
)

// Role is a user's global role.
type Role uint8

const (
	roleUnknown Role = iota
	RoleMember
	RoleLead
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleMember: "MEMBER",
	RoleLead:   "LEAD",
	RoleAdmin:  "ADMIN",
}

// ParseRole parses a global role name. Unknown names are rejected.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return roleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether r is one of the three global roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r ranks at or above other on the ADMIN > LEAD > MEMBER ladder.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r >= other
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
}

// TeamRole is a member's role inside one team, independent of the global role.
type TeamRole uint8

const (
	teamRoleUnknown TeamRole = iota
	TeamRoleMember
	TeamRoleLead
)

// ParseTeamRole parses an in-team role name.
func ParseTeamRole(s string) (TeamRole, error) {
	switch s {
	case "MEMBER":
		return TeamRoleMember, nil
	case "LEAD":
		return TeamRoleLead, nil
	}
	return teamRoleUnknown, fmt.Errorf("unknown team role %q", s)
}

func (r TeamRole) String() string {
	switch r {
	case TeamRoleMember:
		return "MEMBER"
	case TeamRoleLead:
		return "LEAD"
	}
	return "UNKNOWN"
}

// Valid reports whether r is LEAD or MEMBER.
func (r TeamRole) Valid() bool {
	return r == TeamRoleMember || r == TeamRoleLead
}

func (r TeamRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid team role %d", r)
	}
	return []byte(r.String()), nil
}

func (r *TeamRole) UnmarshalText(b []byte) error {
	parsed, err := ParseTeamRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
