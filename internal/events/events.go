// Package events provides the in-process activity feed. Recording is fire and
// forget: request paths must never block or fail because the feed is full or
// slow, so the bus drops the oldest event when the buffer overflows.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action identifies what happened to a record.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionObsolete     Action = "obsolete"
	ActionLink         Action = "link"
	ActionUnlink       Action = "unlink"
	ActionRead         Action = "read"
	ActionQuery        Action = "query"
	ActionToolExecute  Action = "tool_execute"
	ActionReembedStart Action = "reembed_start"
	ActionReembedDone  Action = "reembed_done"
)

// Event is one activity record.
type Event struct {
	ID         int64                  `json:"id"`
	UserID     string                 `json:"user_id"`
	Action     Action                 `json:"action"`
	TargetType string                 `json:"target_type,omitempty"`
	TargetID   int64                  `json:"target_id,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Recorder is what services depend on. A nil-safe no-op implementation exists
// for tests and for deployments that disable the feed.
type Recorder interface {
	Record(e Event)
}

// Bus is a bounded in-memory ring of recent activity. When the ring is full
// the oldest event is evicted; Record never blocks.
type Bus struct {
	mu         sync.Mutex
	buf        []Event
	head       int
	size       int
	nextID     int64
	trackReads bool
	dropped    int64
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithTrackReads enables recording of read and query events. Off by default:
// read traffic dominates and would flush mutations out of the ring.
func WithTrackReads(track bool) Option {
	return func(b *Bus) { b.trackReads = track }
}

// WithClock overrides the timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus builds a bus holding at most capacity events.
func NewBus(capacity int, logger *zap.Logger, opts ...Option) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		buf:    make([]Event, capacity),
		logger: logger.Named("events"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Record stores the event, evicting the oldest when full. Read-class events
// are discarded unless read tracking is on.
func (b *Bus) Record(e Event) {
	if (e.Action == ActionRead || e.Action == ActionQuery) && !b.trackReads {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	e.ID = b.nextID
	if e.OccurredAt.IsZero() {
		e.OccurredAt = b.now()
	}

	if b.size == len(b.buf) {
		// overwrite the oldest slot
		b.buf[b.head] = e
		b.head = (b.head + 1) % len(b.buf)
		b.dropped++
	} else {
		b.buf[(b.head+b.size)%len(b.buf)] = e
		b.size++
	}
}

// Recent returns up to limit events, newest first.
func (b *Bus) Recent(userID string, limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > b.size {
		limit = b.size
	}
	out := make([]Event, 0, limit)
	for i := b.size - 1; i >= 0 && len(out) < limit; i-- {
		e := b.buf[(b.head+i)%len(b.buf)]
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Dropped reports how many events were evicted by overflow.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// NopRecorder discards everything.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(Event) {}
