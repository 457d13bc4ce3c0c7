package audit

import (
	"context"
	"sync"
	"time"

	"gatehouse.org/internal/alert"
	"gatehouse.org/internal/ids"
	"gatehouse.org/internal/obs"
)

// Store appends immutable events. There is no update or delete; compliance
// purges are an out-of-band administrative concern.
type Store interface {
	Append(ctx context.Context, e *Event) error
}

// Recorder is the audit pipeline entry point. Record is side effect only: it
// enqueues and returns. Persistence failures are swallowed, logged to the
// fallback channel and counted, never surfaced to the originating operation.
type Recorder struct {
	store     Store
	scorer    *Scorer
	alerts    *alert.Broadcaster
	threshold int
	now       func() time.Time

	queue     chan Event
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithAlertThreshold sets the risk score at which alerts are emitted.
func WithAlertThreshold(threshold int) RecorderOption {
	return func(r *Recorder) {
		if threshold >= 0 && threshold <= 100 {
			r.threshold = threshold
		}
	}
}

// WithBroadcaster attaches the alert fan-out.
func WithBroadcaster(b *alert.Broadcaster) RecorderOption {
	return func(r *Recorder) { r.alerts = b }
}

// WithQueueSize bounds the in-flight buffer.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// WithRecorderClock overrides the time source. Useful for tests.
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder starts the pipeline worker. Close drains and stops it.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:     store,
		threshold: 70,
		now:       time.Now,
		queue:     make(chan Event, 1024),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.scorer = NewScorer(r.now)
	go r.run()
	return r
}

// Record enqueues the event. It never blocks and never panics: when the
// queue is saturated or the recorder is closed, the event is dropped,
// counted and logged, and the caller proceeds.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	select {
	case <-r.stop:
		obs.CountAuditDrop()
		obs.Logger().Error().Str("event_type", e.Type).Msg("audit recorder closed, event dropped")
		return
	default:
	}
	select {
	case r.queue <- e:
	default:
		obs.CountAuditDrop()
		obs.Logger().Error().Str("event_type", e.Type).Msg("audit queue saturated, event dropped")
	}
}

// Close stops accepting events and drains whatever was already queued.
// Safe to call more than once, and concurrent Record calls are dropped
// rather than panicking on a closed channel.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case e := <-r.queue:
			r.process(e)
		case <-r.stop:
			for {
				select {
				case e := <-r.queue:
					r.process(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) process(e Event) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	score, flags := r.scorer.Score(&e)
	e.RiskScore = score
	e.AnomalyFlags = flags

	// The pipeline owns its own deadline; callers are long gone.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Append(ctx, &e); err != nil {
		obs.CountAuditDrop()
		obs.Logger().Error().Err(err).Str("event_type", e.Type).Msg("audit append failed")
		return
	}
	obs.CountAuditEvent(e.Type)

	if e.RiskScore >= r.threshold && len(e.AnomalyFlags) > 0 {
		r.emitAlert(e)
	}
}

func (r *Recorder) emitAlert(e Event) {
	for _, flag := range e.AnomalyFlags {
		obs.CountAlert(flag)
	}
	if r.alerts == nil {
		return
	}
	r.alerts.Publish(alert.Alert{
		ID:          ids.New(),
		EventID:     e.ID,
		EventType:   e.Type,
		PrincipalID: e.PrincipalID,
		Origin:      e.Origin,
		RiskScore:   e.RiskScore,
		Flags:       e.AnomalyFlags,
		CreatedAt:   e.CreatedAt,
	})
}
