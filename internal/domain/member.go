package domain

import (
	"encoding/json"
	"fmt"
)

type Membership int

const (
	MembershipLeft Membership = iota
	MembershipJoined
	MembershipInvited
	MembershipBanned
)

func (m Membership) String() string {
	switch m {
	case MembershipJoined:
		return "joined"
	case MembershipInvited:
		return "invited"
	case MembershipBanned:
		return "banned"
	case MembershipLeft:
		return "left"
	}
	return "unknown"
}

func ParseMembership(s string) (Membership, error) {
	switch s {
	case "joined":
		return MembershipJoined, nil
	case "invited":
		return MembershipInvited, nil
	case "banned":
		return MembershipBanned, nil
	case "left":
		return MembershipLeft, nil
	}
	return MembershipLeft, fmt.Errorf("unknown membership %q", s)
}

// IsActive reports whether the member currently counts as part of the room.
func (m Membership) IsActive() bool {
	return m == MembershipJoined || m == MembershipInvited
}

func (m Membership) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Membership) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseMembership(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Member is an immutable snapshot of a user's participation in a room.
// Keep it comparable: presenters diff snapshots with ==.
type Member struct {
	UserID      UserID     `json:"user_id"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Membership  Membership `json:"membership"`
	PowerLevel  int64      `json:"power_level"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, membership Membership, powerLevel int64) Member {
	return Member{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Membership:  membership,
		PowerLevel:  powerLevel,
	}
}

func (m Member) Role() Role { return RoleForPowerLevel(m.PowerLevel) }

func (m Member) IsBanned() bool { return m.Membership == MembershipBanned }
