package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role int

const (
	RoleUser Role = iota
	RoleModerator
	RoleAdmin
)

const (
	PowerLevelUser      int64 = 0
	PowerLevelModerator int64 = 50
	PowerLevelAdmin     int64 = 100
)

func (r Role) PowerLevel() int64 {
	switch r {
	case RoleAdmin:
		return PowerLevelAdmin
	case RoleModerator:
		return PowerLevelModerator
	}
	return PowerLevelUser
}

func RoleForPowerLevel(level int64) Role {
	switch {
	case level >= PowerLevelAdmin:
		return RoleAdmin
	case level >= PowerLevelModerator:
		return RoleModerator
	}
	return RoleUser
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleModerator:
		return "moderator"
	case RoleUser:
		return "user"
	}
	return "unknown"
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "moderator":
		return RoleModerator, nil
	case "user":
		return RoleUser, nil
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}
