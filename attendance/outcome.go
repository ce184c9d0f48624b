package attendance

import (
	"goclockin/factorial"
	"goclockin/reconcile"
)

// Sources of a clock request, recorded in the journal.
const (
	SourceLogin    = "login"
	SourceWake     = "wake"
	SourceSleep    = "sleep"
	SourceLogout   = "logout"
	SourceManual   = "manual"
	SourceShutdown = "shutdown"
)

// Results of a clock request.
const (
	ResultOK       = "ok"
	ResultNoOp     = "no-op"
	ResultSkipped  = "skipped"
	ResultConflict = "conflict"
	ResultFailed   = "failed"
)

// Request is one clock action to run. Automatic clock-ins are gated on the
// working-day check; manual requests and clock-outs are not. Manual requests
// are also allowed while the configuration is invalid.
type Request struct {
	Action reconcile.Action
	Source string
	Manual bool
}

// Outcome is the typed result of a Request.
type Outcome struct {
	Request  Request
	Decision reconcile.Decision
	Shift    *reconcile.Shift
	Skipped  string
	Err      error
}

func (o Outcome) Result() string {
	switch {
	case o.Err != nil:
		if o.Skipped != "" {
			return ResultSkipped
		}
		return ResultFailed
	case o.Skipped != "":
		return ResultSkipped
	case o.Decision.Kind == reconcile.Conflict:
		return ResultConflict
	case o.Decision.Kind == reconcile.NoOp:
		return ResultNoOp
	default:
		return ResultOK
	}
}

// DecisionLabel names the reconciler decision, or "skipped" when the action
// never reached the reconciler.
func (o Outcome) DecisionLabel() string {
	if o.Skipped != "" || (o.Err != nil && o.Decision.Kind == reconcile.NoOp && o.Decision.Reason == "") {
		return ResultSkipped
	}
	return o.Decision.Kind.String()
}

// Message is a one-line summary for users.
func (o Outcome) Message() string {
	switch o.Result() {
	case ResultFailed:
		return "failed: " + o.Err.Error()
	case ResultSkipped:
		return "skipped: " + o.Skipped
	case ResultConflict:
		return "conflict: " + o.Decision.Reason
	case ResultNoOp:
		return "nothing to do: " + o.Decision.Reason
	}
	verb := "clocked in"
	if o.Decision.Kind == reconcile.Close {
		verb = "clocked out"
	}
	message := verb + " at " + o.Decision.At.Format("15:04")
	if o.Decision.Warning != "" {
		message += " (" + o.Decision.Warning + ")"
	}
	return message
}

// Retryable reports whether running the same request later may succeed.
func (o Outcome) Retryable() bool {
	return o.Skipped == "" && factorial.IsTemporary(o.Err)
}
