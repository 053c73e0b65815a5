package dialog

import (
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
	"github.com/zhouzirui/voicecal/backend/internal/normalize"
)

// clarifyAfterUnknown is how many consecutive uninterpretable turns are
// tolerated in COLLECT_SLOTS before switching to a targeted clarification.
const clarifyAfterUnknown = 2

// Outcome is the result of one transition: the state entered, the reply to
// speak, and an optional side-effect request for the owner.
type Outcome struct {
	State  State
	Reply  string
	Effect Effect
}

// Machine holds the conversation position and slot set for one session.
// It performs no I/O and is not safe for concurrent use; the session layer
// serializes access.
type Machine struct {
	state         State
	slots         schedule.SlotSet
	unknownStreak int
	loc           *time.Location
}

// NewMachine starts a conversation awaiting identity verification.
func NewMachine(loc *time.Location) *Machine {
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{state: StateAwaitIdentity, loc: loc}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Slots returns a copy of the current slot set.
func (m *Machine) Slots() schedule.SlotSet { return m.slots }

// IdentityVerified moves the machine out of AWAIT_IDENTITY. No slot
// processing happens before this transition.
func (m *Machine) IdentityVerified(displayName string) Outcome {
	m.state = StateCollectSlots
	return Outcome{State: m.state, Reply: greeting(displayName)}
}

// IdentityRejected keeps the machine in AWAIT_IDENTITY with a
// re-authentication prompt.
func (m *Machine) IdentityRejected() Outcome {
	m.state = StateAwaitIdentity
	return Outcome{State: m.state, Reply: promptReauth}
}

// Advance applies one interpreted utterance. It must not be called while an
// EXECUTING side effect is outstanding; the session layer guarantees that.
func (m *Machine) Advance(in normalize.Result) Outcome {
	state, slots, streak, reply, effect := step(m.state, m.slots, m.unknownStreak, in, m.loc)
	m.state, m.slots, m.unknownStreak = state, slots, streak
	return Outcome{State: state, Reply: reply, Effect: effect}
}

// ExecutionSucceeded finishes the booking. The slot set is discarded; a
// later utterance starts a fresh one in the same session.
func (m *Machine) ExecutionSucceeded(eventID string) Outcome {
	m.state = StateDone
	m.slots = schedule.SlotSet{}
	return Outcome{State: m.state, Reply: successReply(eventID)}
}

// ExecutionFailed returns to slot collection with every slot preserved so
// the user can retry without repeating themselves.
func (m *Machine) ExecutionFailed(explanation string) Outcome {
	m.state = StateCollectSlots
	m.slots.Confirmed = false
	return Outcome{State: m.state, Reply: explanation + " Your details are still here; say yes to try again or tell me what to change."}
}

// step is the pure transition function: (state, slots, intent) in, new state
// and slots out. Keeping it free of machine internals makes every path
// directly testable.
func step(state State, slots schedule.SlotSet, streak int, in normalize.Result, loc *time.Location) (State, schedule.SlotSet, int, string, Effect) {
	if in.Intent == schedule.IntentCancel {
		return StateAborted, schedule.SlotSet{}, 0, promptCancelled, EffectNone
	}

	switch state {
	case StateCollectSlots, StateClarify:
		return collect(state, slots, streak, in, loc)

	case StateConfirm:
		return confirm(slots, in, loc)

	case StateDone, StateAborted:
		// Same session, new booking: start over with a fresh slot set and
		// feed this utterance straight into collection.
		return collect(StateCollectSlots, schedule.SlotSet{}, 0, in, loc)

	default:
		// AWAIT_IDENTITY never reaches Advance; treat defensively.
		return state, slots, streak, promptReauth, EffectNone
	}
}

func collect(state State, slots schedule.SlotSet, streak int, in normalize.Result, loc *time.Location) (State, schedule.SlotSet, int, string, Effect) {
	changed := slots.Apply(in.Update)

	if slots.IsComplete() {
		return StateConfirm, slots, 0, restatement(slots, loc), EffectNone
	}

	if !changed && in.Intent == schedule.IntentUnknown {
		streak++
		if streak >= clarifyAfterUnknown {
			return StateClarify, slots, streak, clarifyPrompt(slots), EffectNone
		}
		return state, slots, streak, promptRepeat, EffectNone
	}

	return state, slots, 0, missingPrompt(slots), EffectNone
}

func confirm(slots schedule.SlotSet, in normalize.Result, loc *time.Location) (State, schedule.SlotSet, int, string, Effect) {
	switch in.Intent {
	case schedule.IntentConfirm:
		if !in.Update.Empty() {
			// "Yes, actually make it 2pm" both confirms and corrects; ask
			// for one unambiguous answer instead of guessing.
			return StateConfirm, slots, 0, promptAmbiguous, EffectNone
		}
		slots.Confirmed = true
		return StateExecuting, slots, 0, "", EffectExecute

	case schedule.IntentDeny:
		slots.Confirmed = false
		// A correction carried in the same breath ("no, 2pm") overwrites
		// just that field; everything already correct is preserved.
		if changed := slots.Apply(in.Update); changed && slots.IsComplete() {
			return StateConfirm, slots, 0, restatement(slots, loc), EffectNone
		}
		return StateCollectSlots, slots, 0, promptDenied, EffectNone

	case schedule.IntentProvideInfo:
		slots.Apply(in.Update)
		if slots.IsComplete() {
			return StateConfirm, slots, 0, restatement(slots, loc), EffectNone
		}
		return StateCollectSlots, slots, 0, missingPrompt(slots), EffectNone

	default:
		return StateConfirm, slots, 0, "Please answer yes or no. " + restatement(slots, loc), EffectNone
	}
}
