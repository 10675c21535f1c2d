package archive

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/internal/task"
	"github.com/arloliu/go-seamctl/logger"
)

const (
	defaultBacklog      = 256
	defaultWriteTimeout = 2 * time.Second
)

// writer is the part of Store the Recorder writes to.
type writer interface {
	InsertCycle(ctx context.Context, c Cycle) error
	FinishCycle(ctx context.Context, c Cycle) error
	InsertSeam(ctx context.Context, r Seam) error
}

type row interface {
	write(ctx context.Context, w writer) error
}

type cycleStarted struct{ c Cycle }

type cycleStopped struct{ c Cycle }

type seamStopped struct{ s Seam }

func (r cycleStarted) write(ctx context.Context, w writer) error { return w.InsertCycle(ctx, r.c) }
func (r cycleStopped) write(ctx context.Context, w writer) error { return w.FinishCycle(ctx, r.c) }
func (r seamStopped) write(ctx context.Context, w writer) error { return w.InsertSeam(ctx, r.s) }

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBacklog sets the number of rows that may wait for the writer task.
func WithBacklog(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.rows = make(chan row, n)
		}
	}
}

// WithClock replaces the time source of the archived timestamps.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder turns cycle controller effects into archive rows. Observe runs on the cyclic task; the
// rows are written by a task started with Start.
type Recorder struct {
	logger  logger.Logger
	store   writer
	now     func() time.Time
	rows    chan row
	current *Cycle
	started atomic.Bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, l logger.Logger, opts ...RecorderOption) *Recorder {
	return newRecorder(store, l, opts...)
}

func newRecorder(w writer, l logger.Logger, opts ...RecorderOption) *Recorder {
	if l == nil {
		l = logger.GetLogger()
	}

	r := &Recorder{
		logger: l.With("component", "archive"),
		store:  w,
		now:    time.Now,
		rows:   make(chan row, defaultBacklog),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start runs the writer task on mgr.
func (r *Recorder) Start(mgr *task.Manager) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRecorderStarted
	}

	return task.StartConsumer(mgr, "archive", r.write, r.rows)
}

// Dropped returns the number of rows dropped because the writer fell behind.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Failed returns the number of rows the database rejected.
func (r *Recorder) Failed() uint64 {
	return r.failed.Load()
}

// Observe is a cycle.Observer.
func (r *Recorder) Observe(_ cycle.Context, fx cycle.Effect) {
	switch fx := fx.(type) {
	case cycle.StartCycle:
		r.current = &Cycle{
			ID:            uuid.Must(uuid.NewV7()).String(),
			ProductType:   fx.Product.Type,
			ProductNumber: fx.Product.Number,
			ProductInfo:   fx.Product.Info,
			Started:       r.now(),
		}
		r.enqueue(cycleStarted{*r.current})

	case cycle.StopSeam:
		if r.current == nil {
			return
		}
		r.enqueue(seamStopped{Seam{
			CycleID:    r.current.ID,
			SeamSeries: fx.SeamSeries,
			Seam:       fx.Number,
			Errors:     fx.Errors,
			Results:    fx.Results,
			Forced:     fx.Forced,
			Stopped:    r.now(),
		}})

	case cycle.SeamFailed:
		if r.current == nil {
			return
		}
		r.enqueue(seamStopped{Seam{
			CycleID:    r.current.ID,
			SeamSeries: fx.SeamSeries,
			Seam:       fx.Number,
			Errors:     fx.Errors,
			Forced:     true,
			Stopped:    r.now(),
		}})

	case cycle.StopCycle:
		if r.current == nil {
			return
		}
		c := *r.current
		c.Stopped = r.now()
		c.Errors = fx.Errors
		c.FailedSeams = fx.FailedSeams
		c.InspectionOK = fx.InspectionOK
		c.Forced = fx.Forced
		r.current = nil
		r.enqueue(cycleStopped{c})
	}
}

func (r *Recorder) enqueue(rw row) {
	select {
	case r.rows <- rw:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("archive writer behind, dropping rows")
		}
	}
}

func (r *Recorder) write(rw row) bool {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	if err := rw.write(ctx, r.store); err != nil {
		r.failed.Add(1)
		r.logger.Error("archive write failed", "error", err)
	}

	return true
}
