package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDropsOldestOnOverflow(t *testing.T) {
	b := NewBus(2, zap.NewNop())
	b.Record(Event{UserID: "u1", Action: ActionCreate, TargetID: 1})
	b.Record(Event{UserID: "u1", Action: ActionCreate, TargetID: 2})
	b.Record(Event{UserID: "u1", Action: ActionCreate, TargetID: 3})

	got := b.Recent("u1", 10)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].TargetID)
	assert.Equal(t, int64(2), got[1].TargetID)
	assert.Equal(t, int64(1), b.Dropped())
}

func TestBusIgnoresReadsByDefault(t *testing.T) {
	b := NewBus(10, zap.NewNop())
	b.Record(Event{UserID: "u1", Action: ActionRead, TargetID: 1})
	b.Record(Event{UserID: "u1", Action: ActionQuery})
	assert.Empty(t, b.Recent("u1", 10))

	tracked := NewBus(10, zap.NewNop(), WithTrackReads(true))
	tracked.Record(Event{UserID: "u1", Action: ActionRead, TargetID: 1})
	assert.Len(t, tracked.Recent("u1", 10), 1)
}

func TestBusFiltersByUser(t *testing.T) {
	b := NewBus(10, zap.NewNop())
	b.Record(Event{UserID: "u1", Action: ActionCreate})
	b.Record(Event{UserID: "u2", Action: ActionCreate})

	got := b.Recent("u1", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
}

func TestBusAssignsIDsAndTimestamps(t *testing.T) {
	b := NewBus(10, zap.NewNop())
	b.Record(Event{UserID: "u1", Action: ActionCreate})
	b.Record(Event{UserID: "u1", Action: ActionUpdate})

	got := b.Recent("u1", 10)
	require.Len(t, got, 2)
	assert.Greater(t, got[0].ID, got[1].ID)
	assert.False(t, got[0].OccurredAt.IsZero())
}
