// Package reconcile decides which attendance call, if any, a clock action
// should produce given the shifts already recorded for the day.
package reconcile

import (
	"fmt"
	"sort"
	"time"
)

// ActionKind says whether an Action clocks in or out.
type ActionKind int

const (
	ClockIn ActionKind = iota + 1
	ClockOut
)

func (k ActionKind) String() string {
	switch k {
	case ClockIn:
		return "clock-in"
	case ClockOut:
		return "clock-out"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is a request to clock in or out at a wall-clock time.
type Action struct {
	Kind ActionKind
	At   time.Time
}

// Shift is one attendance record. ID is empty for shifts not yet created
// remotely; ClockOut is nil while the shift is open.
type Shift struct {
	ID       string
	ClockIn  time.Time
	ClockOut *time.Time
}

// Open reports whether the shift has no clock-out yet.
func (s Shift) Open() bool {
	return s.ClockOut == nil
}

// DecisionKind is the remote change a Decision asks for.
type DecisionKind int

const (
	NoOp DecisionKind = iota
	Create
	Close
	Conflict
)

func (k DecisionKind) String() string {
	switch k {
	case NoOp:
		return "no-op"
	case Create:
		return "create"
	case Close:
		return "close"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("decision(%d)", int(k))
	}
}

// Decision is the reconciler's verdict. At is the start for Create and the
// end for Close. Warning is set when At was clamped.
type Decision struct {
	Kind    DecisionKind
	ShiftID string
	At      time.Time
	Warning string
	Reason  string
}

// Clamped reports whether At was moved to keep shift times monotonic.
func (d Decision) Clamped() bool {
	return d.Warning != ""
}

// Reconcile maps an action onto the day's shifts. It never returns a Close
// whose end precedes the shift start, and it reports more than one open
// shift as Conflict instead of picking one.
func Reconcile(action Action, shifts []Shift) Decision {
	open := OpenShifts(shifts)
	if len(open) > 1 {
		return Decision{
			Kind:   Conflict,
			Reason: fmt.Sprintf("%d open shifts recorded for the day", len(open)),
		}
	}

	switch action.Kind {
	case ClockIn:
		return reconcileClockIn(action, shifts, open)
	case ClockOut:
		return reconcileClockOut(action, open)
	default:
		return Decision{Kind: NoOp, Reason: "unknown action " + action.Kind.String()}
	}
}

func reconcileClockIn(action Action, shifts, open []Shift) Decision {
	if len(open) == 1 {
		return Decision{
			Kind:    NoOp,
			ShiftID: open[0].ID,
			Reason:  "already clocked in since " + open[0].ClockIn.Format("15:04"),
		}
	}

	latest, ok := Latest(shifts)
	if !ok {
		return Decision{Kind: Create, At: action.At, Reason: "no shift today"}
	}

	decision := Decision{Kind: Create, At: action.At, Reason: "previous shift closed"}
	if action.At.Before(*latest.ClockOut) {
		decision.At = *latest.ClockOut
		decision.Warning = fmt.Sprintf(
			"clock-in at %s precedes previous clock-out at %s; starting at %s",
			action.At.Format("15:04:05"),
			latest.ClockOut.Format("15:04:05"),
			latest.ClockOut.Format("15:04:05"),
		)
	}
	return decision
}

func reconcileClockOut(action Action, open []Shift) Decision {
	if len(open) == 0 {
		return Decision{Kind: NoOp, Reason: "no open shift"}
	}

	shift := open[0]
	decision := Decision{Kind: Close, ShiftID: shift.ID, At: action.At, Reason: "closing open shift"}
	if action.At.Before(shift.ClockIn) {
		decision.At = shift.ClockIn
		decision.Warning = fmt.Sprintf(
			"clock-out at %s precedes clock-in at %s; clamped to zero duration",
			action.At.Format("15:04:05"),
			shift.ClockIn.Format("15:04:05"),
		)
	}
	return decision
}

// OpenShifts returns the shifts without a clock-out.
func OpenShifts(shifts []Shift) []Shift {
	out := make([]Shift, 0, 1)
	for _, shift := range shifts {
		if shift.Open() {
			out = append(out, shift)
		}
	}
	return out
}

// Latest returns the closed shift with the latest clock-out.
func Latest(shifts []Shift) (Shift, bool) {
	closed := make([]Shift, 0, len(shifts))
	for _, shift := range shifts {
		if !shift.Open() {
			closed = append(closed, shift)
		}
	}
	if len(closed) == 0 {
		return Shift{}, false
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClockOut.Before(*closed[j].ClockOut)
	})
	return closed[len(closed)-1], true
}

// Apply returns the shift list as it looks after decision was carried out.
// newID names the shift created by a Create decision.
func Apply(decision Decision, shifts []Shift, newID string) []Shift {
	out := append([]Shift(nil), shifts...)
	switch decision.Kind {
	case Create:
		out = append(out, Shift{ID: newID, ClockIn: decision.At})
	case Close:
		for i := range out {
			if out[i].ID == decision.ShiftID && out[i].Open() {
				end := decision.At
				out[i].ClockOut = &end
				break
			}
		}
	}
	return out
}
