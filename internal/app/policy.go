package app

import "github.com/dkeye/Moderation/internal/core"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	Disconnect
)

// Policy decides what happens when a client does not drain its frames.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

type SimplePolicy struct {
	DisconnectSlow bool
}

func (p SimplePolicy) OnBackPressure(core.SessionID) BackpressureAction {
	if p.DisconnectSlow {
		return Disconnect
	}
	return DropFrame
}
