package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedBatch struct {
	event   string
	ownerID string
	count   int
}

type fakePublisher struct {
	mu      sync.Mutex
	batches []recordedBatch
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, event, ownerID string, payloads []any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, recordedBatch{event: event, ownerID: ownerID, count: len(payloads)})
	return nil
}

func (p *fakePublisher) recorded() []recordedBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedBatch(nil), p.batches...)
}

type ownedPayload struct {
	ID    string `json:"id"`
	Owner string `json:"-"`
}

func (p ownedPayload) OwnerID() string { return p.Owner }

func TestManagerBuffersUntilFlush(t *testing.T) {
	pub := &fakePublisher{}
	mgr := NewManager(pub)
	ctx := context.Background()

	mgr.Emit(ctx, "team-update", "team-1", map[string]string{"id": "team-1"})
	mgr.Emit(ctx, "team-update", "team-1", map[string]string{"id": "team-1"})
	assert.Empty(t, pub.recorded(), "nothing publishes below the threshold")

	mgr.Flush(ctx)
	batches := pub.recorded()
	require.Len(t, batches, 1)
	assert.Equal(t, recordedBatch{event: "team-update", ownerID: "team-1", count: 2}, batches[0])

	// flush drains the buffer; a second flush is a no-op
	mgr.Flush(ctx)
	assert.Len(t, pub.recorded(), 1)
}

func TestManagerGroupsByEventAndOwner(t *testing.T) {
	pub := &fakePublisher{}
	mgr := NewManager(pub)
	ctx := context.Background()

	mgr.Emit(ctx, "team-update", "team-1", 1)
	mgr.Emit(ctx, "team-update", "team-2", 2)
	mgr.Emit(ctx, "user-update", "team-1", 3)
	mgr.Flush(ctx)

	batches := pub.recorded()
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Equal(t, 1, b.count)
	}
}

func TestManagerFlushesAtThreshold(t *testing.T) {
	pub := &fakePublisher{}
	mgr := NewManager(pub)
	ctx := context.Background()

	for i := 0; i < FlushThreshold; i++ {
		mgr.Emit(ctx, "user-insert", "team-1", i)
	}

	batches := pub.recorded()
	require.Len(t, batches, 1, "hitting the threshold flushes without waiting")
	assert.Equal(t, FlushThreshold, batches[0].count)

	mgr.Flush(ctx)
	assert.Len(t, pub.recorded(), 1, "the early flush emptied the batch")
}

func TestManagerEmitChangeUsesEntityOwner(t *testing.T) {
	pub := &fakePublisher{}
	mgr := NewManager(pub)
	ctx := context.Background()

	mgr.EmitChange(ctx, "team", ActionInsert, ownedPayload{ID: "team-7", Owner: "team-7"})
	mgr.Flush(ctx)

	batches := pub.recorded()
	require.Len(t, batches, 1)
	assert.Equal(t, "team-insert", batches[0].event)
	assert.Equal(t, "team-7", batches[0].ownerID)
}

func TestManagerSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("bus down")}
	mgr := NewManager(pub)
	ctx := context.Background()

	mgr.Emit(ctx, "team-delete", "team-1", 1)
	mgr.Flush(ctx) // must not panic

	// subsequent emits still work once the bus recovers
	pub.err = nil
	mgr.Emit(ctx, "team-delete", "team-1", 2)
	mgr.Flush(ctx)
	require.Len(t, pub.recorded(), 1)
}

func TestManagerNilPublisher(t *testing.T) {
	mgr := NewManager(nil)
	ctx := context.Background()

	mgr.Emit(ctx, "user-update", "team-1", 1)
	mgr.Flush(ctx) // no-op, no panic
}

func TestChangeEvent(t *testing.T) {
	assert.Equal(t, "team-insert", ChangeEvent("team", ActionInsert))
	assert.Equal(t, "user-delete", ChangeEvent("user", ActionDelete))
}
