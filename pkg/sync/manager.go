package sync

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/log"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// DefaultBaseBackoff and DefaultMaxBackoff are the retry-schedule defaults
// an adapter uses when the facade doesn't override them at registration.
const (
	DefaultBaseBackoff = 500 * time.Millisecond
	DefaultMaxBackoff  = 5 * time.Minute
)

type registration struct {
	adapter     Adapter
	state       State
	backoff     backoffState
	baseBackoff time.Duration
	maxBackoff  time.Duration
	ackedSeq    uint64
	wake        wake
}

// Manager owns the changelog store, the origin device id stamped on every
// emitted record, and the set of registered adapters. It implements
// query.ChangeNotifier so the facade can wire it directly into the query
// engine.
type Manager struct {
	mu       sync.Mutex
	store    kv.Store
	deviceID string
	clock    func() time.Time
	broker   *broker
	adapters map[string]*registration
}

// NewManager builds a Manager over store's __changelog object store.
// clock defaults to time.Now; tests inject a deterministic one.
func NewManager(store kv.Store, deviceID string, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:    store,
		deviceID: deviceID,
		clock:    clock,
		broker:   newBroker(),
		adapters: map[string]*registration{},
	}
}

// Register adds adapter under its Name(). Re-registration of the same name
// is a no-op — it does not reset backoff or state — matching the
// "registered once per name" contract. The ack watermark is loaded from
// AckStore so a restarted process resumes Flush from where the adapter
// last durably acked, rather than replaying the whole change log.
func (m *Manager) Register(a Adapter) {
	name := a.Name()

	m.mu.Lock()
	if _, ok := m.adapters[name]; ok {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	acked, err := m.loadAck(context.Background(), name)
	if err != nil {
		acked = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[name]; ok {
		return
	}
	m.adapters[name] = &registration{
		adapter:     a,
		state:       StateIdle,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		ackedSeq:    acked,
		wake:        m.broker.subscribe(name),
	}
}

// loadAck reads name's durable ack watermark from AckStore, returning 0 if
// none has been persisted yet (a never-flushed or brand-new adapter).
func (m *Manager) loadAck(ctx context.Context, name string) (uint64, error) {
	txn, err := m.store.Begin(ctx, []string{AckStore}, false)
	if err != nil {
		return 0, err
	}
	defer func() { _ = txn.Abort() }()

	raw, err := txn.Get(AckStore, []byte(name))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// persistAck durably records name's ack watermark as seq, committed in its
// own transaction so it survives independently of the change-set records
// it acknowledges.
func (m *Manager) persistAck(ctx context.Context, name string, seq uint64) error {
	txn, err := m.store.Begin(ctx, []string{AckStore}, true)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Put(AckStore, []byte(name), buf); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit()
}

// Unregister removes an adapter; it stops receiving wake-ups and Flush
// calls against its name become NotFound.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adapters, name)
	m.broker.unsubscribe(name)
}

// WakeChannel returns the channel name's Flush loop should select on: it
// receives a value after any committed mutation (via AfterCommit) so a
// facade-owned goroutine can call Flush promptly instead of polling.
func (m *Manager) WakeChannel(name string) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.adapters[name]
	if !ok {
		return nil, qerr.New(qerr.NotFound, "sync.Manager.WakeChannel", "no adapter registered under this name")
	}
	return r.wake, nil
}

// State reports one registered adapter's current state machine position.
func (m *Manager) State(name string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.adapters[name]
	if !ok {
		return "", qerr.New(qerr.NotFound, "sync.Manager.State", "no adapter registered under this name")
	}
	return r.state, nil
}

// AdapterNames returns every currently registered adapter name, for a
// facade shutdown path that needs to flush each one.
func (m *Manager) AdapterNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	return names
}

// Stores implements query.ChangeNotifier: every mutating transaction must
// additionally span the changelog store so Emit's append commits
// atomically with the row mutation.
func (m *Manager) Stores() []string { return []string{Store} }

// Emit implements query.ChangeNotifier: it assigns the next monotonic
// sequence and writes the Change-Set Record into the __changelog store
// inside txn, so the record commits atomically with the row mutation that
// produced it. Live adapters are woken (non-blockingly) after the method
// returns — actual delivery happens on the next Flush, which reads the
// durable, committed log rather than this in-flight txn.
func (m *Manager) Emit(txn kv.Txn, table string, kind string, pk string, before, after types.Row) error {
	seq, err := nextSequence(txn)
	if err != nil {
		return err
	}
	record := Record{
		Sequence:     seq,
		Table:        table,
		Kind:         Kind(kind),
		PK:           pk,
		Before:       before,
		After:        after,
		CommittedAt:  m.clock().UTC(),
		OriginDevice: m.deviceID,
	}
	data, err := encodeRecord(record)
	if err != nil {
		return qerr.Wrap(qerr.ValidationFailed, "sync.Manager.Emit", err)
	}
	return txn.Put(Store, sequenceKey(seq), data)
}

// AfterCommit wakes every registered adapter. The facade calls this once,
// after a transaction whose Emit call(s) succeeded has committed.
func (m *Manager) AfterCommit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broker.publishAll()
}

// since reads every record with sequence > after, in order, read-only.
func (m *Manager) since(ctx context.Context, after uint64) ([]Record, error) {
	txn, err := m.store.Begin(ctx, []string{Store}, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = txn.Abort() }()

	cur, err := txn.Cursor(Store)
	if err != nil {
		return nil, err
	}
	var records []Record
	for k, v := cur.Seek(sequenceKey(after + 1)); k != nil; k, v = cur.Next() {
		rec, err := decodeRecord(v)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Pull returns every record after name's last-acked sequence, for adapters
// that prefer to drive their own push loop instead of calling Flush.
func (m *Manager) Pull(ctx context.Context, name string) ([]Record, error) {
	m.mu.Lock()
	r, ok := m.adapters[name]
	m.mu.Unlock()
	if !ok {
		return nil, qerr.New(qerr.NotFound, "sync.Manager.Pull", "no adapter registered under this name")
	}
	return m.since(ctx, r.ackedSeq)
}

// Ack advances name's ack watermark to seq and persists it to AckStore so
// a restart reconciles the change-log head against this watermark instead
// of replaying already-acked records. The caller must have durably
// confirmed the remote peer accepted every record up to and including seq.
func (m *Manager) Ack(name string, seq uint64) error {
	m.mu.Lock()
	r, ok := m.adapters[name]
	if !ok {
		m.mu.Unlock()
		return qerr.New(qerr.NotFound, "sync.Manager.Ack", "no adapter registered under this name")
	}
	current := r.ackedSeq
	m.mu.Unlock()

	if seq <= current {
		return nil
	}
	if err := m.persistAck(context.Background(), name, seq); err != nil {
		return qerr.Wrap(qerr.SyncTransportError, "sync.Manager.Ack", err)
	}

	m.mu.Lock()
	if seq > r.ackedSeq {
		r.ackedSeq = seq
	}
	m.mu.Unlock()
	return nil
}

// Flush drives one adapter's state machine: idle→syncing while Push runs,
// then syncing→idle on success (backoff reset, ack watermark advanced to
// the last pushed sequence) or syncing→error on failure (exponential
// backoff scheduled, capped at maxBackoff). Flush is a no-op returning nil
// if there is nothing pending and the adapter isn't in backoff.
func (m *Manager) Flush(ctx context.Context, name string) error {
	m.mu.Lock()
	r, ok := m.adapters[name]
	if !ok {
		m.mu.Unlock()
		return qerr.New(qerr.NotFound, "sync.Manager.Flush", "no adapter registered under this name")
	}
	after := r.ackedSeq
	m.mu.Unlock()

	records, err := m.since(ctx, after)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	r.state = StateSyncing
	m.mu.Unlock()

	adapterLog := log.WithAdapter(name)
	if err := r.adapter.Push(records); err != nil {
		m.mu.Lock()
		r.state = StateError
		delay := r.backoff.schedule(m.clock(), r.baseBackoff, r.maxBackoff, err)
		m.mu.Unlock()
		adapterLog.Error().Err(err).Dur("retry_in", delay).Msg("sync push failed")
		return qerr.Wrap(qerr.SyncTransportError, "sync.Manager.Flush", err)
	}

	last := records[len(records)-1].Sequence
	if err := m.persistAck(ctx, name, last); err != nil {
		m.mu.Lock()
		r.state = StateError
		delay := r.backoff.schedule(m.clock(), r.baseBackoff, r.maxBackoff, err)
		m.mu.Unlock()
		adapterLog.Error().Err(err).Dur("retry_in", delay).Msg("failed to persist ack watermark")
		return qerr.Wrap(qerr.SyncTransportError, "sync.Manager.Flush", err)
	}

	m.mu.Lock()
	r.state = StateIdle
	r.backoff.reset()
	r.ackedSeq = last
	m.mu.Unlock()
	return nil
}

// Tick retries every adapter currently in the error state whose backoff
// has elapsed as of now. Driven by an injected scheduler, never a hidden
// timer, so tests can advance time deterministically.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	m.mu.Lock()
	var due []string
	for name, r := range m.adapters {
		if r.state == StateError && !now.Before(r.backoff.nextRetry) {
			due = append(due, name)
		}
	}
	m.mu.Unlock()

	for _, name := range due {
		_ = m.Flush(ctx, name)
	}
}

// Stop returns name's adapter to idle from any state, without altering its
// ack watermark. Matches the "stop returns to idle from any state"
// transition.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.adapters[name]
	if !ok {
		return qerr.New(qerr.NotFound, "sync.Manager.Stop", "no adapter registered under this name")
	}
	r.state = StateIdle
	r.backoff.reset()
	return nil
}
