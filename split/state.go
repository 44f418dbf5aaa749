package split

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Status is the stage of an install task.
type Status int

const (
	Pending Status = iota
	Downloading
	Installing
	Installed
	Failed
	Canceled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Downloading:
		return "downloading"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further states follow s.
func (s Status) Terminal() bool {
	return s == Installed || s == Failed || s == Canceled
}

// State is a snapshot of an install task.
type State struct {
	Err        error
	TaskID     string
	Modules    []string
	Downloaded int64
	Total      int64
	Status     Status
}

// Request lists the modules to install.
type Request struct {
	Modules []string
}

func NewRequest(modules ...string) Request {
	return Request{Modules: slices.Clone(modules)}
}

// Manager installs modules on demand.
type Manager interface {
	// InstalledModules returns the names of installed modules, sorted.
	InstalledModules() []string

	// StartInstall starts installing the requested modules. Errors returned
	// here concern the request itself; install failures are reported
	// through the task and listeners.
	StartInstall(ctx context.Context, req Request) (*Task, error)

	// RegisterListener subscribes fn to the states of every task.
	RegisterListener(fn func(State)) (unregister func())
}

// Task is a running install.
type Task struct {
	err     error
	done    chan struct{}
	id      string
	modules []string
	status  Status
	mu      sync.Mutex
}

func newTask(id string, modules []string) *Task {
	return &Task{id: id, modules: modules, done: make(chan struct{})}
}

func (t *Task) ID() string {
	return t.id
}

func (t *Task) Modules() []string {
	return slices.Clone(t.modules)
}

// Done is closed when the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Status returns the latest status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the failure of a finished task, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) set(status Status, err error) {
	t.mu.Lock()
	t.status = status
	if err != nil {
		t.err = err
	}
	t.mu.Unlock()
	if status.Terminal() {
		close(t.done)
	}
}
