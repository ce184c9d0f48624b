// Package events turns lifecycle signals into clock requests and runs them
// one at a time.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"goclockin/attendance"
	"goclockin/reconcile"
)

// ErrSystemEvent reports an event source that could not be started. The
// daemon keeps running in manual-only mode.
var ErrSystemEvent = errors.New("system event source unavailable")

type Kind string

const (
	KindLogin     Kind = "login"
	KindWake      Kind = "wake"
	KindSleep     Kind = "sleep"
	KindLogout    Kind = "logout"
	KindManualIn  Kind = "manual_in"
	KindManualOut Kind = "manual_out"
)

var kinds = []Kind{KindLogin, KindWake, KindSleep, KindLogout, KindManualIn, KindManualOut}

func ParseKind(value string) (Kind, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "-", "_")
	for _, kind := range kinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", value)
}

func (k Kind) Manual() bool {
	return k == KindManualIn || k == KindManualOut
}

func (k Kind) action() reconcile.ActionKind {
	switch k {
	case KindLogin, KindWake, KindManualIn:
		return reconcile.ClockIn
	default:
		return reconcile.ClockOut
	}
}

func (k Kind) source() string {
	switch k {
	case KindLogin:
		return attendance.SourceLogin
	case KindWake:
		return attendance.SourceWake
	case KindSleep:
		return attendance.SourceSleep
	case KindLogout:
		return attendance.SourceLogout
	default:
		return attendance.SourceManual
	}
}

// Event is one lifecycle signal. At is the wall-clock time the signal was
// observed; Origin names the component that produced it.
type Event struct {
	Kind   Kind
	At     time.Time
	Origin string
}

// OriginShutdown marks the logout event emitted when the daemon stops.
const OriginShutdown = "shutdown"

// Request maps the event onto the clock request it stands for.
func (e Event) Request() attendance.Request {
	source := e.Kind.source()
	if e.Kind == KindLogout && e.Origin == OriginShutdown {
		source = attendance.SourceShutdown
	}
	return attendance.Request{
		Action: reconcile.Action{Kind: e.Kind.action(), At: e.At},
		Source: source,
		Manual: e.Kind.Manual(),
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%s from %s", e.Kind, e.At.Format(time.RFC3339), e.Origin)
}
