package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxRoomNameLen = 64

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type (
	RoomName string
	RoomID   string
)

type Room struct {
	ID       RoomID   `json:"id"`
	Name     RoomName `json:"name"`
	IsDirect bool     `json:"is_direct"`
}

func NewRoom(name string, direct bool) (*Room, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return nil, ErrRoomNameTooLong
	}
	return &Room{
		ID:       RoomID(uuid.NewString()),
		Name:     RoomName(name),
		IsDirect: direct,
	}, nil
}
