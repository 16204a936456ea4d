// Package quilldb is the top-level facade: the single entry point an
// embedding application opens, mutates through, searches through, and
// closes, wiring the query engine, index manager, security manager, query
// cache, and sync manager together the way the teacher's pkg/manager.Manager
// wires together raft, storage, secrets, and the event broker behind one
// struct.
package quilldb

import (
	"context"
	"sync"
	"time"

	"github.com/quilldb/quilldb/pkg/cache"
	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/index"
	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/log"
	"github.com/quilldb/quilldb/pkg/memory"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/query"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/security"
	syncpkg "github.com/quilldb/quilldb/pkg/sync"
	"github.com/quilldb/quilldb/pkg/types"

	"github.com/google/uuid"
)

// State is the facade's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateOpening       State = "opening"
	StateReady         State = "ready"
	StateRotating      State = "rotating"
	StateClosed        State = "closed"
)

const (
	metaStore = "__meta"
	metaKey   = "meta"
)

// KDFParams mirrors security.KDFParams at the config boundary so callers
// don't need to import pkg/security just to tune it.
type KDFParams = security.KDFParams

// SyncConfig configures the cross-device change log at init.
type SyncConfig struct {
	Enabled bool
}

// Config is consumed at init. EncryptionKey, when set, skips the KDF;
// otherwise Passphrase is run through argon2id with a per-DB random salt
// persisted in __meta.
type Config struct {
	Path             string
	Version          int
	Schema           schema.Schema
	Passphrase       string
	EncryptionKey    []byte
	KDFParams        KDFParams
	Sync             SyncConfig
	CacheMaxEntries  int
	CacheDuration    time.Duration
	RotationBatch    int
	DeviceID         string
	Clock            func() time.Time
	ScoringWeights   *memory.ScoringWeights
}

// dbMeta is the reserved __meta store's persisted document.
type dbMeta struct {
	SchemaVersion      int                      `json:"schemaVersion"`
	KDFSalt            []byte                   `json:"kdfSalt,omitempty"`
	KeyRingDescriptors []string                 `json:"keyRingDescriptors"`
	DeviceID           string                   `json:"deviceId"`
	PendingRotation    *pendingRotation         `json:"pendingRotation,omitempty"`
	Tables             map[string]tableSnapshot `json:"tables,omitempty"`
}

// pendingRotation records an in-flight key rotation durably enough to
// survive a crash: SealedNewKey is newKeyID's key material, sealed under
// the key that was active when the rotation began. Persisting this before
// the sweep's first batch commits is what lets quilldb.Open reconstruct a
// ring containing both keys and resume the sweep, instead of stranding
// rows a crashed sweep already re-encrypted under a key no durable record
// named. See RotateEncryptionKey and Rotator.SweepAll.
type pendingRotation struct {
	NewKeyID     string        `json:"newKeyId"`
	SealedNewKey codec.Envelope `json:"sealedNewKey"`
}

// rotationSealColumn is the nominal "column" RotateEncryptionKey seals the
// pending new key under — Manager.Seal accepts it only for signature
// symmetry with per-field sealing and attaches no column-derived data.
const rotationSealColumn = "__rotation"

// DB is the facade handle returned by Open. All data-plane methods are
// only valid in StateReady; outside it they fail with qerr.NotReady.
type DB struct {
	mu    sync.RWMutex
	state State

	cfg    Config
	store  kv.Store
	schema schema.Schema

	indexes  *index.Manager
	crypto   *security.Manager
	rotator  *security.Rotator
	engine   *query.Engine
	cache    *cache.Cache
	syncMgr  *syncpkg.Manager

	deviceID          string
	tableFingerprints map[string]map[string]bool
}

// Open builds and initializes a DB against cfg, the facade's equivalent of
// NewManager+Bootstrap collapsed into one call since there is no cluster
// membership to join. Open is idempotent only in the sense the spec
// requires of init: calling Open twice on independent Config values yields
// independent handles; callers wanting a singleton should hold onto the
// returned *DB themselves.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	db := &DB{state: StateUninitialized, cfg: cfg, schema: cfg.Schema}
	if err := db.open(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) open(ctx context.Context) error {
	db.state = StateOpening

	stores := make([]string, 0, len(db.schema)+3)
	stores = append(stores, metaStore, syncpkg.Store, syncpkg.AckStore)
	for name := range db.schema {
		stores = append(stores, name)
	}

	store := kv.NewBoltStore()
	if err := store.Open(ctx, kv.OpenOptions{Path: db.cfg.Path, Stores: stores, Version: db.cfg.Version}); err != nil {
		return err
	}
	db.store = store

	meta, err := db.loadOrInitMeta(ctx)
	if err != nil {
		_ = store.Close()
		return err
	}
	if meta.SchemaVersion > 0 && db.cfg.Version > 0 && db.cfg.Version < meta.SchemaVersion {
		_ = store.Close()
		return qerr.New(qerr.IncompatibleSchemaChange, "quilldb.Open", "requested version is older than the stored schema version")
	}
	db.deviceID = meta.DeviceID

	crypto, err := db.openKeyRing(meta)
	if err != nil {
		_ = store.Close()
		return err
	}
	db.crypto = crypto

	if err := db.migrateSchema(ctx, &meta); err != nil {
		_ = store.Close()
		return err
	}
	if err := db.updateMeta(ctx, func(m *dbMeta) {
		m.Tables = meta.Tables
		m.SchemaVersion = meta.SchemaVersion
	}); err != nil {
		_ = store.Close()
		return err
	}

	db.indexes = index.NewManager(db.schema)
	if err := db.rebuildIndexes(ctx); err != nil {
		_ = store.Close()
		return err
	}

	db.engine = query.NewEngine(db.store, db.schema, db.indexes, db.crypto)

	batch := db.cfg.RotationBatch
	db.rotator = security.NewRotator(db.crypto, db.store, db.schema, batch)

	if meta.PendingRotation != nil {
		if err := db.resumePendingRotation(ctx, meta.PendingRotation); err != nil {
			_ = store.Close()
			return err
		}
	}

	if db.cfg.Sync.Enabled {
		clock := db.cfg.Clock
		syncMgr := syncpkg.NewManager(db.store, db.deviceID, clock)
		db.syncMgr = syncMgr
		db.engine.SetNotifier(syncMgr)
	}

	db.cache = cache.New(db.cfg.CacheMaxEntries, db.cfg.CacheDuration, db.cfg.Clock)

	log.WithComponent("quilldb").Info().Str("device_id", db.deviceID).Int("tables", len(db.schema)).Msg("database opened")

	db.mu.Lock()
	db.state = StateReady
	db.mu.Unlock()
	return nil
}

func (db *DB) loadOrInitMeta(ctx context.Context) (dbMeta, error) {
	txn, err := db.store.Begin(ctx, []string{metaStore}, true)
	if err != nil {
		return dbMeta{}, err
	}
	raw, err := txn.Get(metaStore, []byte(metaKey))
	if err != nil {
		_ = txn.Abort()
		return dbMeta{}, err
	}
	if raw != nil {
		meta, err := decodeMeta(raw)
		if err != nil {
			_ = txn.Abort()
			return dbMeta{}, err
		}
		_ = txn.Abort()
		return meta, nil
	}

	meta := dbMeta{SchemaVersion: db.cfg.Version, DeviceID: db.cfg.DeviceID}
	if meta.DeviceID == "" {
		meta.DeviceID = uuid.NewString()
	}
	if db.cfg.EncryptionKey == nil && db.cfg.Passphrase != "" {
		salt, err := security.NewSalt()
		if err != nil {
			_ = txn.Abort()
			return dbMeta{}, err
		}
		meta.KDFSalt = salt
	}
	encoded, err := encodeMeta(meta)
	if err != nil {
		_ = txn.Abort()
		return dbMeta{}, err
	}
	if err := txn.Put(metaStore, []byte(metaKey), encoded); err != nil {
		_ = txn.Abort()
		return dbMeta{}, err
	}
	if err := txn.Commit(); err != nil {
		return dbMeta{}, err
	}
	return meta, nil
}

// openKeyRing derives or accepts the active key and builds the ring. When
// the table schema has no sensitive columns at all and no key material was
// supplied, crypto stays nil and the engine runs unencrypted.
func (db *DB) openKeyRing(meta dbMeta) (*security.Manager, error) {
	hasSensitive := false
	for _, t := range db.schema {
		if len(t.Sensitive) > 0 {
			hasSensitive = true
			break
		}
	}
	if !hasSensitive && db.cfg.EncryptionKey == nil && db.cfg.Passphrase == "" {
		return nil, nil
	}

	var key []byte
	switch {
	case db.cfg.EncryptionKey != nil:
		key = db.cfg.EncryptionKey
	case db.cfg.Passphrase != "":
		derived, err := security.DeriveKey(db.cfg.Passphrase, meta.KDFSalt, db.cfg.KDFParams)
		if err != nil {
			return nil, err
		}
		key = derived
	default:
		return nil, qerr.New(qerr.KeyDerivationFailed, "quilldb.openKeyRing", "table declares sensitive columns but no encryptionKey or passphrase was supplied")
	}

	keyID := "k1"
	if len(meta.KeyRingDescriptors) > 0 {
		keyID = meta.KeyRingDescriptors[0]
	}
	ring := security.NewKeyRing(keyID, key)
	mgr := security.NewManager(ring)

	// A rotation was in flight when the DB last closed (crash or otherwise).
	// meta.KeyRingDescriptors still names only the old key, so key/keyID
	// above reconstruct it exactly as before the rotation started; the new
	// key's material was sealed under that same old key at rotation start,
	// so it can be recovered and prepended here, giving the ring both keys
	// before any sweep resumes.
	if meta.PendingRotation != nil {
		newKey, err := mgr.Open(rotationSealColumn, meta.PendingRotation.SealedNewKey)
		if err != nil {
			return nil, qerr.Wrap(qerr.KeyDerivationFailed, "quilldb.openKeyRing", err)
		}
		ring.Prepend(meta.PendingRotation.NewKeyID, newKey)
	}

	return mgr, nil
}

// rebuildIndexes replays every row of every table into the in-memory
// inverted and vector indexes, since those indexes are not themselves
// persisted — only the row stores are. This is what makes reopening a
// database after a crash or restart functionally transparent.
func (db *DB) rebuildIndexes(ctx context.Context) error {
	for name, t := range db.schema {
		txn, err := db.store.Begin(ctx, []string{name}, false)
		if err != nil {
			return err
		}
		cur, err := txn.Cursor(name)
		if err != nil {
			_ = txn.Abort()
			return err
		}
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			row, err := codec.DecodeRow(t, v, db.openSeal(t))
			if err != nil {
				_ = txn.Abort()
				return err
			}
			pk := string(k)
			var vec []float32
			if t.Vector != nil {
				if val, ok := row[t.Vector.Column]; ok {
					vec, _ = val.AsVector()
				}
			}
			if err := db.indexes.IndexRow(name, pk, searchableTextOf(t, row), vec); err != nil {
				_ = txn.Abort()
				return err
			}
		}
		_ = txn.Abort()
	}
	return nil
}

func (db *DB) openSeal(t *schema.TableDef) codec.Open {
	if len(t.Sensitive) == 0 || db.crypto == nil {
		return nil
	}
	return db.crypto.Open
}

func searchableTextOf(t *schema.TableDef, row types.Row) string {
	var out string
	for col := range t.Searchable {
		if v, ok := row[col]; ok {
			if s, ok := v.AsString(); ok {
				if out != "" {
					out += " "
				}
				out += s
			}
		}
	}
	return out
}

// checkReady returns NotReady unless the facade is in StateReady. Rotation
// is allowed to proceed (it transitions ready->rotating itself) but every
// other data-plane call requires plain StateReady.
func (db *DB) checkReady() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.state != StateReady {
		return qerr.New(qerr.NotReady, "quilldb", "database is not ready").WithColumn(string(db.state))
	}
	return nil
}

// State reports the facade's current lifecycle position.
func (db *DB) State() State {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.state
}

// Close awaits in-flight transactions (the KV layer already serializes
// these per store, so once Close acquires the write lock none remain),
// flushes every registered sync adapter one last time, zeroes key
// material, and closes the underlying store.
func (db *DB) Close(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state == StateClosed {
		return nil
	}
	if db.syncMgr != nil {
		for _, name := range db.syncMgr.AdapterNames() {
			_ = db.syncMgr.Flush(ctx, name)
		}
	}
	if db.crypto != nil {
		db.crypto.Ring().Zero()
	}
	err := db.store.Close()
	db.state = StateClosed
	return err
}
