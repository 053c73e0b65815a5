// Package dialog implements the conversation state machine that drives a
// scheduling session from identity verification through slot collection to
// the single confirmed calendar execution. Transitions are pure: the machine
// never talks to collaborators itself, it only requests side effects.
package dialog

// State is the current position in the scheduling conversation.
type State string

const (
	StateAwaitIdentity State = "AWAIT_IDENTITY"
	StateCollectSlots  State = "COLLECT_SLOTS"
	StateClarify       State = "CLARIFY"
	StateConfirm       State = "CONFIRM"
	StateExecuting     State = "EXECUTING"
	StateDone          State = "DONE"
	StateAborted       State = "ABORTED"
)

// Terminal reports whether the state ends the current booking.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Effect is a side effect the machine asks its owner to perform.
type Effect int

const (
	// EffectNone requires nothing beyond delivering the reply.
	EffectNone Effect = iota
	// EffectExecute requires exactly one calendar-creation call with a
	// snapshot of the confirmed slots.
	EffectExecute
)
