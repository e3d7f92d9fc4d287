// File: internal/action/action.go
package action

// Kind identifies one unit of browser manipulation or a run-termination
// signal. The string values are the wire vocabulary shared with the vision
// model and the event stream.
type Kind string

const (
	KindClick      Kind = "click"
	KindType       Kind = "type"
	KindScroll     Kind = "scroll"
	KindNavigate   Kind = "navigate"
	KindWait       Kind = "wait"
	KindKey        Kind = "key"
	KindMoveMouse  Kind = "move_mouse"
	KindDrag       Kind = "drag"
	KindScreenshot Kind = "screenshot"
	KindDone       Kind = "done"
	KindFail       Kind = "fail"
)

// AllKinds enumerates every action kind. Exhaustiveness tests iterate this
// slice so a newly introduced kind cannot ship without an executor case.
var AllKinds = []Kind{
	KindClick, KindType, KindScroll, KindNavigate, KindWait, KindKey,
	KindMoveMouse, KindDrag, KindScreenshot, KindDone, KindFail,
}

// DefaultScrollAmount is the pixel delta used when the model omits an amount.
const DefaultScrollAmount = 300

// Valid reports whether k is a recognized action kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the kind ends the run.
func (k Kind) Terminal() bool {
	return k == KindDone || k == KindFail
}

// Action is a tagged variant over Kind. Fields are a superset across kinds;
// fields irrelevant to the active kind are left at their zero value.
type Action struct {
	Kind Kind `json:"action"`

	// Click, move_mouse, and optional scroll focus position. Absolute pixels
	// against the viewport, origin top-left.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// Type payload.
	Text string `json:"text,omitempty"`

	// Navigate target.
	URL string `json:"url,omitempty"`

	// Scroll parameters. Direction is "up" or "down"; an empty direction is
	// treated as "down" by the executor.
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	// Key press name, e.g. "Enter".
	Key string `json:"key,omitempty"`

	// Drag start/end coordinate pairs.
	StartX int `json:"start_x,omitempty"`
	StartY int `json:"start_y,omitempty"`
	EndX   int `json:"end_x,omitempty"`
	EndY   int `json:"end_y,omitempty"`

	// Reason carries the model's rationale. Always populated for done/fail.
	Reason string `json:"reason,omitempty"`
}

// Done builds a terminal success action.
func Done(reason string) Action {
	return Action{Kind: KindDone, Reason: reason}
}

// Fail builds a terminal failure action.
func Fail(reason string) Action {
	return Action{Kind: KindFail, Reason: reason}
}

// Wait builds a no-op action that gives the model another turn.
func Wait(reason string) Action {
	return Action{Kind: KindWait, Reason: reason}
}
