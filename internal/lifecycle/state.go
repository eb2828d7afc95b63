package lifecycle

import (
	"fmt"

	"github.com/stealthpool/client-go/internal/apierrors"
)

// State is a position in the deposit lifecycle.
type State int

const (
	StateUnknown State = iota
	StateCreated
	StateCiphertextUploaded
	// StateCompleted means funded and delegated; the sender is done.
	StateCompleted
	// StatePooledInput, StateOutputPrepared and StateOutputFunded are
	// reached by the automation agent only.
	StatePooledInput
	StateOutputPrepared
	StateOutputFunded
	StateClaimed
	StateWithdrawn
	StateAbandoned
)

var stateNames = [...]string{
	StateUnknown:            "unknown",
	StateCreated:            "created",
	StateCiphertextUploaded: "ciphertext_uploaded",
	StateCompleted:          "completed",
	StatePooledInput:        "pooled_input",
	StateOutputPrepared:     "output_prepared",
	StateOutputFunded:       "output_funded",
	StateClaimed:            "claimed",
	StateWithdrawn:          "withdrawn",
	StateAbandoned:          "abandoned",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	StateUnknown:            {StateCreated},
	StateCreated:            {StateCiphertextUploaded, StateAbandoned},
	StateCiphertextUploaded: {StateCompleted, StateAbandoned},
	StateCompleted:          {StatePooledInput},
	StatePooledInput:        {StateOutputPrepared},
	StateOutputPrepared:     {StateOutputFunded},
	StateOutputFunded:       {StateClaimed},
	StateClaimed:            {StateWithdrawn},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateWithdrawn || s == StateAbandoned
}

// Abandonable reports whether the sender can still recover the funds.
func (s State) Abandonable() bool {
	return s.CanTransition(StateAbandoned)
}

// transition checks and performs a state change.
func transition(cur *State, next State) error {
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", apierrors.ErrInvalidTransition, *cur, next)
	}
	*cur = next
	return nil
}
