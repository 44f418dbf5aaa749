package execctx

import (
	"fmt"
	"sync"

	"github.com/wippyai/featurekit/errors"
)

// State is a lifecycle state. States after Initialized are ordered.
type State int

const (
	Destroyed State = iota
	Initialized
	Created
	Started
	Resumed
)

func (s State) String() string {
	switch s {
	case Destroyed:
		return "destroyed"
	case Initialized:
		return "initialized"
	case Created:
		return "created"
	case Started:
		return "started"
	case Resumed:
		return "resumed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AtLeast reports whether s is at or after other.
func (s State) AtLeast(other State) bool {
	return s >= other
}

// Observer is notified after each state change.
type Observer func(from, to State)

// Lifecycle is a read-only view of a lifecycle.
type Lifecycle interface {
	CurrentState() State
	// AddObserver registers o and returns a function removing it.
	AddObserver(o Observer) (remove func())
}

// LifecycleOwner is a context whose lifetime is observable.
type LifecycleOwner interface {
	Lifecycle() Lifecycle
}

// LifecycleRegistry is a mutable Lifecycle driven by its owner.
type LifecycleRegistry struct {
	observers map[int]Observer
	state     State
	nextID    int
	mu        sync.Mutex
}

func NewLifecycleRegistry() *LifecycleRegistry {
	return &LifecycleRegistry{state: Initialized, observers: make(map[int]Observer)}
}

func (r *LifecycleRegistry) CurrentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *LifecycleRegistry) AddObserver(o Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.observers[id] = o
	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// MoveTo changes the state and notifies observers. Destroyed is terminal.
func (r *LifecycleRegistry) MoveTo(to State) error {
	if to < Destroyed || to > Resumed {
		return errors.InvalidInput(errors.PhaseAttach, "unknown lifecycle state "+to.String())
	}

	r.mu.Lock()
	from := r.state
	if from == to {
		r.mu.Unlock()
		return nil
	}
	if from == Destroyed {
		r.mu.Unlock()
		return errors.InvalidInput(errors.PhaseAttach, "lifecycle already destroyed")
	}
	r.state = to
	observers := make([]Observer, 0, len(r.observers))
	for id := 0; id < r.nextID; id++ {
		if o, ok := r.observers[id]; ok {
			observers = append(observers, o)
		}
	}
	r.mu.Unlock()

	for _, o := range observers {
		o(from, to)
	}
	return nil
}

// readOnlyLifecycle hides the registry from package code.
type readOnlyLifecycle struct {
	l Lifecycle
}

func (r readOnlyLifecycle) CurrentState() State {
	return r.l.CurrentState()
}

func (r readOnlyLifecycle) AddObserver(o Observer) func() {
	return r.l.AddObserver(o)
}
