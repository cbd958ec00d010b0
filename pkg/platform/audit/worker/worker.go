// Package worker decouples audit persistence from request latency. Appends
// enqueue onto a buffered channel; a background goroutine drains it into the
// store and mirrors events to optional emitters.
package worker

import (
	"context"
	"log/slog"
	"time"

	"vaultgate/pkg/platform/audit"
)

const (
	defaultBuffer = 1024
	appendTimeout = 5 * time.Second
	drainTimeout  = 10 * time.Second
)

// Worker is an asynchronous audit.Store. Count queries pass through to the
// underlying store; appends are buffered. A full buffer drops the event and
// logs it rather than blocking an authorization decision.
type Worker struct {
	store    audit.Store
	emitters []audit.Emitter
	inbox    chan audit.Event
	logger   *slog.Logger
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithEmitter(emitter audit.Emitter) Option {
	return func(w *Worker) {
		w.emitters = append(w.emitters, emitter)
	}
}

func WithBuffer(size int) Option {
	return func(w *Worker) {
		w.inbox = make(chan audit.Event, size)
	}
}

func New(store audit.Store, opts ...Option) *Worker {
	w := &Worker{
		store: store,
		inbox: make(chan audit.Event, defaultBuffer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append enqueues the event. The caller's context is deliberately not
// attached: an aborted request must not cancel its audit record.
func (w *Worker) Append(_ context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case w.inbox <- event:
	default:
		if w.logger != nil {
			w.logger.Error("audit buffer full, event dropped",
				"kind", event.Kind,
				"subject_id", event.SubjectID,
			)
		}
	}
	return nil
}

func (w *Worker) CountSince(ctx context.Context, subjectID string, kind audit.Kind, since time.Time) (int, error) {
	return w.store.CountSince(ctx, subjectID, kind, since)
}

// Run processes the inbox until ctx is cancelled, then drains whatever is
// queued with a detached deadline so in-flight records still land.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.process(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.process(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, event audit.Event) {
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()

	if err := w.store.Append(appendCtx, event); err != nil && w.logger != nil {
		w.logger.Error("audit append failed",
			"kind", event.Kind,
			"subject_id", event.SubjectID,
			"error", err,
		)
	}
	for _, emitter := range w.emitters {
		if err := emitter.Emit(appendCtx, event); err != nil && w.logger != nil {
			w.logger.Warn("audit emit failed", "kind", event.Kind, "error", err)
		}
	}
}
