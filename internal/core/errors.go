package core

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrNotInRoom      = errors.New("not in room")
	ErrForbidden      = errors.New("insufficient power level")
	ErrNotBanned      = errors.New("member is not banned")
	ErrBanned         = errors.New("member is banned")
	ErrAlreadyMember  = errors.New("already a member")
)
