package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, now time.Time) (*Manager, *memStore) {
	t.Helper()
	store := newMemStore()
	require.NoError(t, store.Open(context.Background(), kv.OpenOptions{Stores: []string{Store, "notes"}}))
	clock := func() time.Time { return now }
	return NewManager(store, "device-a", clock), store
}

func emitInsert(t *testing.T, m *Manager, store *memStore, table, pk string, row types.Row) {
	t.Helper()
	txn, err := store.Begin(context.Background(), []string{Store, table}, true)
	require.NoError(t, err)
	require.NoError(t, m.Emit(txn, table, "insert", pk, nil, row))
	require.NoError(t, txn.Commit())
}

func TestEmitAssignsMonotonicSequence(t *testing.T) {
	m, store := newTestManager(t, time.Now())
	emitInsert(t, m, store, "notes", "1", types.Row{"title": types.StringValue("a")})
	emitInsert(t, m, store, "notes", "2", types.Row{"title": types.StringValue("b")})

	records, err := m.since(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, 1, records[0].Sequence)
	assert.EqualValues(t, 2, records[1].Sequence)
	assert.Equal(t, "device-a", records[0].OriginDevice)
}

type fakeAdapter struct {
	name    string
	pushes  [][]Record
	failN   int
	callNum int
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Push(records []Record) error {
	a.callNum++
	if a.callNum <= a.failN {
		return errors.New("transport unavailable")
	}
	a.pushes = append(a.pushes, records)
	return nil
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	m, _ := newTestManager(t, time.Now())
	a1 := &fakeAdapter{name: "remote"}
	a2 := &fakeAdapter{name: "remote"}
	m.Register(a1)
	m.Register(a2)

	require.NoError(t, m.Ack("remote", 5))
	state, err := m.State("remote")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)

	ch, err := m.WakeChannel("remote")
	require.NoError(t, err)
	assert.NotNil(t, ch)
}

func TestFlushDeliversPendingRecordsAndAdvancesAck(t *testing.T) {
	now := time.Now()
	m, store := newTestManager(t, now)
	adapter := &fakeAdapter{name: "remote"}
	m.Register(adapter)

	emitInsert(t, m, store, "notes", "1", types.Row{"title": types.StringValue("hello")})
	emitInsert(t, m, store, "notes", "2", types.Row{"title": types.StringValue("world")})

	err := m.Flush(context.Background(), "remote")
	require.NoError(t, err)
	require.Len(t, adapter.pushes, 1)
	assert.Len(t, adapter.pushes[0], 2)

	state, err := m.State("remote")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)

	// nothing new to push
	require.NoError(t, m.Flush(context.Background(), "remote"))
	assert.Len(t, adapter.pushes, 1)
}

func TestFlushFailureEntersErrorStateWithBackoff(t *testing.T) {
	now := time.Now()
	m, store := newTestManager(t, now)
	adapter := &fakeAdapter{name: "remote", failN: 1}
	m.Register(adapter)
	emitInsert(t, m, store, "notes", "1", types.Row{"title": types.StringValue("hello")})

	err := m.Flush(context.Background(), "remote")
	require.Error(t, err)
	state, err := m.State("remote")
	require.NoError(t, err)
	assert.Equal(t, StateError, state)
}

func TestTickRetriesAfterBackoffElapses(t *testing.T) {
	now := time.Now()
	m, store := newTestManager(t, now)
	adapter := &fakeAdapter{name: "remote", failN: 1}
	m.Register(adapter)
	emitInsert(t, m, store, "notes", "1", types.Row{"title": types.StringValue("hello")})

	require.Error(t, m.Flush(context.Background(), "remote"))

	// too soon: state stays error
	m.Tick(context.Background(), now.Add(1*time.Millisecond))
	state, _ := m.State("remote")
	assert.Equal(t, StateError, state)

	// far enough past the scheduled backoff: retries and succeeds
	m.Tick(context.Background(), now.Add(time.Hour))
	state, _ = m.State("remote")
	assert.Equal(t, StateIdle, state)
	assert.Len(t, adapter.pushes, 1)
}

func TestStopReturnsToIdleFromError(t *testing.T) {
	now := time.Now()
	m, store := newTestManager(t, now)
	adapter := &fakeAdapter{name: "remote", failN: 100}
	m.Register(adapter)
	emitInsert(t, m, store, "notes", "1", types.Row{"title": types.StringValue("hello")})
	require.Error(t, m.Flush(context.Background(), "remote"))

	require.NoError(t, m.Stop("remote"))
	state, _ := m.State("remote")
	assert.Equal(t, StateIdle, state)
}

func TestPullReturnsOnlyRecordsAfterAck(t *testing.T) {
	m, store := newTestManager(t, time.Now())
	adapter := &fakeAdapter{name: "remote"}
	m.Register(adapter)
	emitInsert(t, m, store, "notes", "1", types.Row{"title": types.StringValue("a")})
	emitInsert(t, m, store, "notes", "2", types.Row{"title": types.StringValue("b")})

	require.NoError(t, m.Ack("remote", 1))
	records, err := m.Pull(context.Background(), "remote")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.EqualValues(t, 2, records[0].Sequence)
}

func TestAckWatermarkSurvivesManagerRestart(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	require.NoError(t, store.Open(context.Background(), kv.OpenOptions{Stores: []string{Store, AckStore, "notes"}}))
	clock := func() time.Time { return now }

	m1 := NewManager(store, "device-a", clock)
	adapter1 := &fakeAdapter{name: "remote"}
	m1.Register(adapter1)
	emitInsert(t, m1, store, "notes", "1", types.Row{"title": types.StringValue("a")})
	emitInsert(t, m1, store, "notes", "2", types.Row{"title": types.StringValue("b")})
	require.NoError(t, m1.Flush(context.Background(), "remote"))
	require.Len(t, adapter1.pushes, 1)
	assert.Len(t, adapter1.pushes[0], 2)

	// Simulate a process restart: a brand-new Manager over the same durable
	// store, with a freshly registered adapter instance under the same name.
	m2 := NewManager(store, "device-a", clock)
	adapter2 := &fakeAdapter{name: "remote"}
	m2.Register(adapter2)

	// Nothing new since the restart: Flush must not replay the already
	// acked records to the adapter.
	require.NoError(t, m2.Flush(context.Background(), "remote"))
	assert.Empty(t, adapter2.pushes)

	emitInsert(t, m2, store, "notes", "3", types.Row{"title": types.StringValue("c")})
	require.NoError(t, m2.Flush(context.Background(), "remote"))
	require.Len(t, adapter2.pushes, 1)
	assert.Len(t, adapter2.pushes[0], 1)
	assert.EqualValues(t, 3, adapter2.pushes[0][0].Sequence)
}

func TestResolveConflictPrefersLaterCommittedAt(t *testing.T) {
	now := time.Now()
	local := Record{Table: "notes", PK: "1", CommittedAt: now, OriginDevice: "device-a"}
	incoming := Record{Table: "notes", PK: "1", CommittedAt: now.Add(time.Second), OriginDevice: "device-b"}
	winner := Resolve(local, incoming)
	assert.Equal(t, "device-b", winner.OriginDevice)
}

func TestResolveConflictTiebreaksOnDeviceID(t *testing.T) {
	now := time.Now()
	local := Record{Table: "notes", PK: "1", CommittedAt: now, OriginDevice: "device-a"}
	incoming := Record{Table: "notes", PK: "1", CommittedAt: now, OriginDevice: "device-z"}
	winner := Resolve(local, incoming)
	assert.Equal(t, "device-z", winner.OriginDevice)
}
