package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame types.
const (
	TypeSelectMember     = "select_member"
	TypeKick             = "kick"
	TypeBan              = "ban"
	TypeUnban            = "unban"
	TypeReset            = "reset"
	TypeChangeOwnRole    = "change_own_role"
	TypeDemoteSelf       = "demote_self"
	TypeCancelRoleChange = "cancel_role_change"
	TypeCapabilities     = "capabilities"
	TypePing             = "ping"
)

// Outbound frame types.
const (
	TypeModerationState = "moderation_state"
	TypeRolesState      = "roles_state"
	TypePong            = "pong"
	TypeError           = "error"
)

// Error codes carried by error frames.
const (
	CodeBadPayload  = "bad_payload"
	CodeUnknownType = "unknown_type"
	CodeRateLimited = "rate_limited"
	CodeNotFound    = "not_found"
	CodeStopped     = "stopped"
)

var ErrBadFrame = errors.New("bad frame")

// Inbound is every client frame; fields beyond Type depend on it.
type Inbound struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type Outbound struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return in, nil
}

func EncodeFrame(typ string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Type: typ, Data: data})
}

func EncodeError(code, message string) []byte {
	// Outbound with two strings always marshals.
	b, _ := json.Marshal(Outbound{Type: TypeError, Error: code, Message: message})
	return b
}
