// Package events implements the Broadcast Events bus: a lossy,
// process-wide fan-out of named events the Agent Loop and Sync Engine emit
// as they run, for UI-style collaborators that only observe state, never
// mutate it. Authoritative state lives in the Conversation Store and
// Repository State, never on the bus (the "Shared mutable state").
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind names one of the event variants subscribers can observe.
type Kind string

const (
	KindLlmChunk                   Kind = "llm_chunk"
	KindToolCall                   Kind = "tool_call"
	KindToolCallComplete           Kind = "tool_call_complete"
	KindStateChanged                Kind = "state_changed"
	KindConversationStatusChanged  Kind = "conversation_status_changed"
	KindReasoningStarted           Kind = "reasoning_started"
	KindReasoningStep              Kind = "reasoning_step"
	KindReasoningCompleted         Kind = "reasoning_completed"
	KindTokenUsageReport           Kind = "token_usage_report"
	KindCheckpointSuggested        Kind = "checkpoint_suggested"
	KindCheckpointCreated          Kind = "checkpoint_created"
	KindCheckpointRestored         Kind = "checkpoint_restored"
	KindBranchSuggested            Kind = "branch_suggested"
	KindBranchCreated              Kind = "branch_created"
	KindToolRunStarted             Kind = "tool_run_started"
	KindToolRunCompleted           Kind = "tool_run_completed"
	KindConversationUpdated        Kind = "conversation_updated"
	KindError                      Kind = "error"
	KindLog                        Kind = "log"
)

// Event is one broadcast item. Payload carries kind-specific fields as a
// schema-less map, mirroring the Tool Executor Port's "schema-less JSON at
// the port boundary" philosophy since subscribers only need to
// recognize the event names, not a fixed Go type per kind.
type Event struct {
	Kind           Kind
	ConversationID string
	Payload        map[string]any
	Timestamp      time.Time
}

// defaultSubscriberBuffer bounds each subscriber's backlog; a subscriber
// that doesn't drain in time silently lags rather than blocking the
// publisher.
const defaultSubscriberBuffer = 64

// Bus is an in-process, bounded, lossy fan-out of Events (the default
// transport; Kafka is the optional out-of-process alternative in kafka.go).
type Bus struct {
	subsMu sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The channel is buffered to defaultSubscriberBuffer;
// callers needing a different depth should drain promptly instead.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, defaultSubscriberBuffer)
	b.subs[id] = ch

	unsubscribe := func() {
		b.subsMu.Lock()
		defer b.subsMu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Publish fans ev out to every current subscriber. A subscriber whose
// buffer is full is skipped rather than blocking the publisher: slow
// subscribers may lag and miss events, but they must never block the
// loop. This is logged at debug level since it's expected, lossy
// behavior, not an error.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Int("subscriber", id).Str("kind", string(ev.Kind)).Msg("broadcast event dropped, subscriber lagging")
		}
	}
}
