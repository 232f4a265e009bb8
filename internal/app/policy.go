package app

import (
	"fmt"

	"github.com/dkeye/Mesh/internal/core"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

// DropPolicy loses the frame and keeps the slow channel.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.SessionID) BackpressureAction { return DropFrame }

// DisconnectPolicy closes the slow channel.
type DisconnectPolicy struct{}

func (DisconnectPolicy) OnBackPressure(core.SessionID) BackpressureAction { return KickMember }

// PolicyFromString maps the backpressure config value to a Policy.
func PolicyFromString(s string) (Policy, error) {
	switch s {
	case "", "drop":
		return DropPolicy{}, nil
	case "disconnect":
		return DisconnectPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", s)
}
