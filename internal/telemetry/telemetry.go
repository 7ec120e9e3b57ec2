package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vocrag/internal/contextutil"
)

// Event kinds emitted by the retrieval core.
const (
	KindCacheHit  = "cache_hit"
	KindCacheMiss = "cache_miss"
	KindQuery     = "query"
	KindRerank    = "rerank"
)

// Event is a structured telemetry record. Events are fire-and-forget:
// producers never wait on, or fail because of, the recorder.
type Event struct {
	ID    string
	Kind  string
	At    time.Time
	Attrs map[string]any
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(kind string, attrs map[string]any) Event {
	return Event{
		ID:    uuid.New().String(),
		Kind:  kind,
		At:    time.Now(),
		Attrs: attrs,
	}
}

// Recorder receives telemetry events. Implementations must return promptly
// and must not panic; the retrieval core calls Record inline on hot paths.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// SlogRecorder writes events to the structured log.
type SlogRecorder struct{}

// NewSlogRecorder creates a recorder that logs events at debug level.
func NewSlogRecorder() *SlogRecorder {
	return &SlogRecorder{}
}

// Record logs the event. Never fails.
func (r *SlogRecorder) Record(ctx context.Context, event Event) {
	logger := contextutil.LoggerFromContext(ctx)

	attrs := make([]any, 0, 2*len(event.Attrs)+4)
	attrs = append(attrs, "event_id", event.ID, "kind", event.Kind)
	for k, v := range event.Attrs {
		attrs = append(attrs, k, v)
	}
	logger.DebugContext(ctx, "telemetry event", attrs...)
}

// Noop discards all events.
type Noop struct{}

// Record does nothing.
func (Noop) Record(context.Context, Event) {}

var _ Recorder = (*SlogRecorder)(nil)
var _ Recorder = Noop{}
