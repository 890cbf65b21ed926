package domain

import "time"

// Target names the external collaborator a command is addressed to.
type Target string

const (
	TargetMap      Target = "map"
	TargetChart    Target = "chart"
	TargetInfo     Target = "info"
	TargetTimeline Target = "timeline"
	TargetControls Target = "controls"
)

// Command is one declarative update for a renderer. Target, Op and Key
// together identify the thing being set; Payload carries its new value.
type Command struct {
	Target  Target `json:"target"`
	Op      string `json:"op"`
	Key     string `json:"key,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Slot identifies what a command sets, independent of the value.
func (c Command) Slot() string {
	return string(c.Target) + "/" + c.Op + "/" + c.Key
}

// Batch reasons.
const (
	ReasonInitial      = "initial"
	ReasonTransition   = "transition"
	ReasonPresentation = "presentation"
	ReasonRefresh      = "refresh"
	ReasonNoData       = "no_data"
)

// CommandBatch is the envelope published to sinks. Only the envelope carries
// identity and time; Commands is a pure function of state and index.
type CommandBatch struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Reason    string    `json:"reason"`
	EmittedAt time.Time `json:"emitted_at"`
	Commands  []Command `json:"commands"`
}
