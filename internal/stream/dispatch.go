package stream

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chriserin/ftrp/internal/event"
)

type Handler interface {
	Handle(event.Event) error
}

// Source yields events until io.EOF.
type Source interface {
	Next() (event.Event, error)
}

// Dispatcher replays events into a handler. Events of one case stay in
// order on one worker; events of different cases run concurrently. Events
// that belong to no case wait for everything before them.
type Dispatcher struct {
	handler Handler
	workers int
	logger  *zap.Logger
}

type DispatchOption func(*Dispatcher)

func WithWorkers(n int) DispatchOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithDispatchLogger(l *zap.Logger) DispatchOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(h Handler, opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{handler: h, workers: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes src until io.EOF and returns the first handler or read
// error. Nothing is handled after the first failure.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		g       errgroup.Group
		pending sync.WaitGroup
		queues  = make([]chan event.Event, d.workers)
	)
	for i := range queues {
		q := make(chan event.Event, 64)
		queues[i] = q
		g.Go(func() error {
			for ev := range q {
				if ctx.Err() == nil {
					if err := d.handle(ev); err != nil {
						cancel(err)
					}
				}
				pending.Done()
			}
			return nil
		})
	}

	n := 0
	for ctx.Err() == nil {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.logger.Error("read event", zap.Error(err))
			cancel(err)
			break
		}
		n++

		key, ok := caseOf(ev)
		if !ok {
			pending.Wait()
			if ctx.Err() != nil {
				break
			}
			if err := d.handle(ev); err != nil {
				cancel(err)
			}
			continue
		}

		pending.Add(1)
		select {
		case queues[shard(key, len(queues))] <- ev:
		case <-ctx.Done():
			pending.Done()
		}
	}

	for _, q := range queues {
		close(q)
	}
	_ = g.Wait()
	d.logger.Debug("dispatch done", zap.Int("events", n))
	return context.Cause(ctx)
}

func (d *Dispatcher) handle(ev event.Event) error {
	err := d.handler.Handle(ev)
	if err != nil {
		fields := []zap.Field{zap.String("type", TypeOf(ev)), zap.Error(err)}
		if key, ok := caseOf(ev); ok {
			fields = append(fields, zap.String("case", key.URI+":"+strconv.Itoa(key.Line)))
		}
		d.logger.Error("handle event", fields...)
	}
	return err
}

// caseOf returns the case an event belongs to.
func caseOf(ev event.Event) (event.CaseKey, bool) {
	var key event.CaseKey
	switch e := ev.(type) {
	case event.CaseStarted:
		key = e.Key()
	case event.StepStarted:
		key = e.Case
	case event.StepFinished:
		key = e.Case
	case event.CaseFinished:
		key = e.Case
	case event.Embed:
		key = e.Case
	case event.Write:
		key = e.Case
	}
	return key, key != (event.CaseKey{})
}

func shard(key event.CaseKey, n int) int {
	d := xxhash.New()
	_, _ = d.WriteString(key.URI)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(key.Line))
	return int(d.Sum64() % uint64(n))
}
