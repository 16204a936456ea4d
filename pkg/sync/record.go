// Package sync implements the cross-device change log: Change-Set Record
// emission inside the same transaction as the row mutation that produced
// it, adapter registration and fan-out, and last-writer-wins conflict
// resolution for inbound records. Fan-out is grounded on the teacher's
// pkg/events.Broker (non-blocking publish, buffered per-subscriber
// channels); the device-registration and transport layers the original
// system supports (HTTP/REST, WebSocket) are out of scope — this package
// defines only what change sets look like, when they are emitted, and how
// conflicts are resolved.
package sync

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// Store is the reserved append-only object store name for change-set
// records, alongside one store per user table and per index.
const Store = "__changelog"

// AckStore is the reserved object store holding each adapter's durable ack
// watermark, keyed by adapter name. Kept separate from Store so a cursor
// scan over change-set records (keyed by sequence) never has to skip over
// unrelated ack entries.
const AckStore = "__syncacks"

// Kind enumerates the mutation kinds a Change-Set Record can describe.
type Kind string

const (
	Insert Kind = "insert"
	Update Kind = "update"
	Delete Kind = "delete"
)

// Record is one committed mutation: {sequence, table, kind, PK, before?,
// after?, committed-at, origin-device-id}. Sequence is monotonic per DB.
type Record struct {
	Sequence     uint64
	Table        string
	Kind         Kind
	PK           string
	Before       types.Row
	After        types.Row
	CommittedAt  time.Time
	OriginDevice string
}

// wireRecord is Record's JSON-serializable shape: types.Row isn't directly
// JSON-marshalable (Value hides its fields), so rows are snapshotted
// through codec.EncodeValue/DecodeValue column by column.
type wireRecord struct {
	Sequence     uint64                     `json:"seq"`
	Table        string                     `json:"table"`
	Kind         Kind                       `json:"kind"`
	PK           string                     `json:"pk"`
	Before       map[string]wireField       `json:"before,omitempty"`
	After        map[string]wireField       `json:"after,omitempty"`
	CommittedAt  int64                      `json:"committedAt"`
	OriginDevice string                     `json:"originDevice"`
}

type wireField struct {
	Type types.ColumnType `json:"t"`
	Raw  json.RawMessage  `json:"v"`
}

func encodeRowSnapshot(row types.Row) (map[string]wireField, error) {
	if row == nil {
		return nil, nil
	}
	out := make(map[string]wireField, len(row))
	for col, v := range row {
		raw, err := codec.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out[col] = wireField{Type: v.Type, Raw: raw}
	}
	return out, nil
}

func decodeRowSnapshot(fields map[string]wireField) (types.Row, error) {
	if fields == nil {
		return nil, nil
	}
	row := make(types.Row, len(fields))
	for col, f := range fields {
		v, err := codec.DecodeValue(f.Type, f.Raw)
		if err != nil {
			return nil, err
		}
		row[col] = v
	}
	return row, nil
}

// EncodeRecord renders r as the same JSON wire format the changelog store
// persists, so an external transport (a gRPC adapter, an HTTP client) can
// serialize a Record without reimplementing types.Row's encoding.
func EncodeRecord(r Record) ([]byte, error) { return encodeRecord(r) }

// DecodeRecord parses data produced by EncodeRecord back into a Record.
func DecodeRecord(data []byte) (Record, error) { return decodeRecord(data) }

func encodeRecord(r Record) ([]byte, error) {
	before, err := encodeRowSnapshot(r.Before)
	if err != nil {
		return nil, err
	}
	after, err := encodeRowSnapshot(r.After)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRecord{
		Sequence:     r.Sequence,
		Table:        r.Table,
		Kind:         r.Kind,
		PK:           r.PK,
		Before:       before,
		After:        after,
		CommittedAt:  r.CommittedAt.UTC().UnixMilli(),
		OriginDevice: r.OriginDevice,
	})
}

func decodeRecord(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, qerr.Wrap(qerr.ValidationFailed, "sync.decodeRecord", err)
	}
	before, err := decodeRowSnapshot(w.Before)
	if err != nil {
		return Record{}, err
	}
	after, err := decodeRowSnapshot(w.After)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Sequence:     w.Sequence,
		Table:        w.Table,
		Kind:         w.Kind,
		PK:           w.PK,
		Before:       before,
		After:        after,
		CommittedAt:  time.UnixMilli(w.CommittedAt).UTC(),
		OriginDevice: w.OriginDevice,
	}, nil
}

// sequenceKey renders a monotonic sequence as a big-endian 8-byte key so
// the changelog store's natural byte-order iteration equals commit order.
func sequenceKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// nextSequence reads the last key in the changelog store, inside txn, and
// returns one past it. Called once per Emit so the sequence assignment
// commits atomically with the record it numbers.
func nextSequence(txn kv.Txn) (uint64, error) {
	cur, err := txn.Cursor(Store)
	if err != nil {
		return 0, err
	}
	key, _ := cur.Last()
	if key == nil {
		return 1, nil
	}
	return binary.BigEndian.Uint64(key) + 1, nil
}
