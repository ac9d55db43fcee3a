package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/talkbase/accounts/pkg/logger"
	"github.com/talkbase/accounts/pkg/metrics"
)

// FlushThreshold is the number of buffered items per (event, owner) pair
// that triggers an early flush. Anything below flushes at end of request.
const FlushThreshold = 250

// Entity is anything that knows which account owns it. Owner ids partition
// the event stream so consumers can shard by account.
type Entity interface {
	OwnerID() string
}

// Change event suffixes. Event names are "<entity>-<action>", e.g.
// "team-insert" or "user-update".
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ChangeEvent builds the canonical event name for an entity change.
func ChangeEvent(entity, action string) string {
	return entity + "-" + action
}

// Publisher delivers a batch of event payloads that share an event name and
// owner.
type Publisher interface {
	Publish(ctx context.Context, event, ownerID string, payloads []any) error
}

type bufferKey struct {
	event   string
	ownerID string
}

// Manager buffers event payloads grouped by event name and owner, and hands
// full batches to the publisher. Publish failures are logged and counted,
// never surfaced to the caller: events are best effort and must not fail
// the request that produced them.
type Manager struct {
	mu        sync.Mutex
	buffer    map[bufferKey][]any
	publisher Publisher
	threshold int
	log       *zap.Logger
}

// NewManager builds an event buffer in front of the given publisher.
func NewManager(publisher Publisher) *Manager {
	return &Manager{
		buffer:    make(map[bufferKey][]any),
		publisher: publisher,
		threshold: FlushThreshold,
		log:       logger.WithStream("events"),
	}
}

// Emit buffers one payload under the given event and owner. When the batch
// for that pair reaches the threshold it is flushed immediately.
func (m *Manager) Emit(ctx context.Context, event, ownerID string, payload any) {
	key := bufferKey{event: event, ownerID: ownerID}

	m.mu.Lock()
	m.buffer[key] = append(m.buffer[key], payload)
	var full []any
	if len(m.buffer[key]) >= m.threshold {
		full = m.buffer[key]
		delete(m.buffer, key)
	}
	m.mu.Unlock()

	if full != nil {
		m.publish(ctx, key, full)
	}
}

// EmitChange buffers an entity change event, deriving the owner from the
// entity itself.
func (m *Manager) EmitChange(ctx context.Context, entity, action string, e Entity) {
	m.Emit(ctx, ChangeEvent(entity, action), e.OwnerID(), e)
}

// Flush drains every pending batch. Called at the end of each request and
// during shutdown.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.buffer
	m.buffer = make(map[bufferKey][]any)
	m.mu.Unlock()

	for key, payloads := range pending {
		m.publish(ctx, key, payloads)
	}
}

func (m *Manager) publish(ctx context.Context, key bufferKey, payloads []any) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key.event, key.ownerID, payloads); err != nil {
		metrics.EventsPublished.WithLabelValues(key.event, "error").Add(float64(len(payloads)))
		m.log.Error("publish events",
			zap.String("event", key.event),
			zap.String("ownerId", key.ownerID),
			zap.Int("count", len(payloads)),
			zap.Error(err),
		)
		return
	}

	metrics.EventsPublished.WithLabelValues(key.event, "ok").Add(float64(len(payloads)))
}
