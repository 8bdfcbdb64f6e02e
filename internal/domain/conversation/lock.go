package conversation

import (
	"time"

	"github.com/trade-hub/trade-hub/internal/domain/fault"
)

// State is the lock state of a conversation.
type State string

const (
	StateOpen           State = "OPEN"
	StateLockedAccepted State = "LOCKED_ACCEPTED"
	StateLockedDeleted  State = "LOCKED_DELETED"
)

var lockTransitions = map[State][]State{
	StateOpen: {StateLockedAccepted, StateLockedDeleted},
}

// CanTransitionTo reports whether the lock state machine allows moving to target.
func (s State) CanTransitionTo(target State) bool {
	for _, next := range lockTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return len(lockTransitions[s]) == 0
}

// StateFor maps a lock reason to its terminal state.
func StateFor(reason LockReason) State {
	if reason == LockReasonAccepted {
		return StateLockedAccepted
	}
	return StateLockedDeleted
}

// State derives the lock state from the stored flags.
func (c *Conversation) State() State {
	if !c.IsLocked {
		return StateOpen
	}
	return StateFor(c.LockedReason)
}

// CheckWritable fails with a locked fault once the conversation is terminal.
func (c *Conversation) CheckWritable() error {
	if !c.IsLocked {
		return nil
	}
	if c.LockedReason == LockReasonAccepted {
		return fault.Locked("conversation is locked: the trade was already executed")
	}
	return fault.Locked("conversation is locked: negotiation was closed")
}

// ShouldLock reports whether locking with reason changes anything. A locked conversation keeps
// its first reason and later requests are no-ops.
func (c *Conversation) ShouldLock(reason LockReason) bool {
	return c.State().CanTransitionTo(StateFor(reason))
}

// ApplyLock stamps the terminal state.
func (c *Conversation) ApplyLock(reason LockReason, at time.Time) {
	c.IsLocked = true
	c.LockedReason = reason
	locked := at
	c.LockedAt = &locked
}
