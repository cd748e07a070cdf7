package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoLaunch        = errors.New("reporting: launch not started")
	ErrLaunchStarted   = errors.New("reporting: launch already started")
	ErrNilHandle       = errors.New("reporting: nil handle")
	ErrAlreadyFinished = errors.New("reporting: already finished")
)

// Backend performs the blocking store calls. Implementations must be safe
// for concurrent use.
type Backend interface {
	StartLaunch(ctx context.Context, rq StartLaunchRQ) (string, error)
	FinishLaunch(ctx context.Context, launchID string, rq FinishExecutionRQ) error
	StartItem(ctx context.Context, launchID, parentID string, rq StartItemRQ) (string, error)
	FinishItem(ctx context.Context, itemID string, rq FinishExecutionRQ) error
	Log(ctx context.Context, launchID, itemID string, rq LogRQ) error
}

// Client issues store calls asynchronously. Every call returns at once; a
// child start waits for its parent's start, and a finish waits for the
// item's own start plus every child call and log issued before it.
type Client struct {
	backend Backend
	logger  *zap.Logger
	group   *errgroup.Group
	ctx     context.Context
	metrics *metrics

	mu     sync.Mutex
	launch *Handle
}

type Option func(*Client)

// WithLogger sets the logger used for failed store calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithPoolSize bounds the number of store calls in flight.
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.group.SetLimit(n)
		}
	}
}

func NewClient(ctx context.Context, backend Backend, opts ...Option) *Client {
	g, gctx := errgroup.WithContext(ctx)
	c := &Client{
		backend: backend,
		logger:  zap.NewNop(),
		group:   g,
		ctx:     gctx,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = newMetrics(c.logger)
	return c
}

// StartLaunch opens the launch every later item belongs to.
func (c *Client) StartLaunch(rq StartLaunchRQ) (*Handle, error) {
	c.mu.Lock()
	if c.launch != nil {
		c.mu.Unlock()
		return nil, ErrLaunchStarted
	}
	h := newHandle(nil)
	c.launch = h
	c.mu.Unlock()

	c.group.Go(func() error {
		id, err := c.backend.StartLaunch(c.ctx, rq)
		h.id = id
		h.start.resolve(err)
		if err != nil {
			c.logger.Error("start launch", zap.String("name", rq.Name), zap.Error(err))
			return fmt.Errorf("starting launch: %w", err)
		}
		return nil
	})
	return h, nil
}

// FinishLaunch closes the launch once everything issued so far has landed.
func (c *Client) FinishLaunch(rq FinishExecutionRQ) error {
	h := c.currentLaunch()
	if h == nil {
		return ErrNoLaunch
	}
	if !h.markFinished() {
		return ErrAlreadyFinished
	}
	deps := h.pending()

	c.group.Go(func() error {
		if err := h.settle(c.ctx, deps); err != nil {
			return err
		}
		if err := c.backend.FinishLaunch(c.ctx, h.id, rq); err != nil {
			c.logger.Error("finish launch", zap.String("launch", h.id), zap.Error(err))
			return fmt.Errorf("finishing launch: %w", err)
		}
		return nil
	})
	return nil
}

// StartItem opens an item under parent, or at the launch root when parent
// is nil.
func (c *Client) StartItem(parent *Handle, rq StartItemRQ) (*Handle, error) {
	launch := c.currentLaunch()
	if launch == nil {
		return nil, ErrNoLaunch
	}
	if parent == nil {
		parent = launch
	}
	h := newHandle(parent)
	parent.track(h.start)

	c.group.Go(func() error {
		var parentID string
		if parent != launch {
			id, err := parent.ID(c.ctx)
			if err != nil {
				h.start.resolve(err)
				return err
			}
			parentID = id
		}
		launchID, err := launch.ID(c.ctx)
		if err != nil {
			h.start.resolve(err)
			return err
		}

		id, err := c.backend.StartItem(c.ctx, launchID, parentID, rq)
		h.id = id
		h.start.resolve(err)
		if err != nil {
			c.logger.Error("start item", zap.String("name", rq.Name), zap.Error(err))
			return fmt.Errorf("starting item %q: %w", rq.Name, err)
		}
		c.metrics.itemStarted(c.ctx, rq.Type)
		return nil
	})
	return h, nil
}

// FinishItem closes h after its children and logs.
func (c *Client) FinishItem(h *Handle, rq FinishExecutionRQ) error {
	if h == nil || h.parent == nil {
		return ErrNilHandle
	}
	if !h.markFinished() {
		return ErrAlreadyFinished
	}
	deps := h.pending()
	done := newFuture()
	h.parent.track(done)

	c.group.Go(func() error {
		if err := h.settle(c.ctx, deps); err != nil {
			done.resolve(err)
			return err
		}
		err := c.backend.FinishItem(c.ctx, h.id, rq)
		done.resolve(err)
		if err != nil {
			c.logger.Error("finish item", zap.String("item", h.id), zap.Error(err))
			return fmt.Errorf("finishing item %s: %w", h.id, err)
		}
		c.metrics.itemFinished(c.ctx, rq.Status)
		return nil
	})
	return nil
}

// Log attaches a log entry to item, or to the launch when item is nil.
func (c *Client) Log(item *Handle, rq LogRQ) error {
	launch := c.currentLaunch()
	if launch == nil {
		return ErrNoLaunch
	}
	target := item
	if target == nil {
		target = launch
	}
	done := newFuture()
	target.track(done)

	c.group.Go(func() error {
		var itemID string
		if item != nil {
			id, err := item.ID(c.ctx)
			if err != nil {
				done.resolve(err)
				return err
			}
			itemID = id
		}
		launchID, err := launch.ID(c.ctx)
		if err != nil {
			done.resolve(err)
			return err
		}

		err = c.backend.Log(c.ctx, launchID, itemID, rq)
		done.resolve(err)
		if err != nil {
			c.logger.Warn("log", zap.String("item", itemID), zap.Error(err))
			return fmt.Errorf("logging to %s: %w", itemID, err)
		}
		c.metrics.logEmitted(c.ctx, rq.Level, rq.File != nil)
		return nil
	})
	return nil
}

// Launch returns the launch handle, or nil before StartLaunch.
func (c *Client) Launch() *Handle {
	return c.currentLaunch()
}

func (c *Client) currentLaunch() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launch
}

// Close waits for every call issued so far and returns the first failure.
func (c *Client) Close() error {
	return c.group.Wait()
}
