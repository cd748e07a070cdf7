package reporting

import (
	"context"
	"sync"
)

type future struct {
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(err error) {
	f.err = err
	close(f.done)
}

func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle is a forward reference to a launch or item whose start call may
// still be in flight. The store id becomes available once the start lands.
type Handle struct {
	parent *Handle
	start  *future
	id     string

	mu       sync.Mutex
	deps     []*future // child starts, child finishes and logs
	finished bool
}

func newHandle(parent *Handle) *Handle {
	return &Handle{parent: parent, start: newFuture()}
}

// ID blocks until the start call completes and returns the store id.
func (h *Handle) ID(ctx context.Context) (string, error) {
	if err := h.start.wait(ctx); err != nil {
		return "", err
	}
	return h.id, nil
}

func (h *Handle) track(f *future) {
	h.mu.Lock()
	h.deps = append(h.deps, f)
	h.mu.Unlock()
}

// markFinished returns false if the handle was already finished.
func (h *Handle) markFinished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return false
	}
	h.finished = true
	return true
}

func (h *Handle) pending() []*future {
	h.mu.Lock()
	defer h.mu.Unlock()
	deps := make([]*future, len(h.deps))
	copy(deps, h.deps)
	return deps
}

// settle waits for the start call and then for deps, which the caller
// snapshots when the finish is requested so only earlier calls are awaited.
func (h *Handle) settle(ctx context.Context, deps []*future) error {
	if err := h.start.wait(ctx); err != nil {
		return err
	}
	for _, f := range deps {
		if err := f.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
