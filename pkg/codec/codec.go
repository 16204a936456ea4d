// Package codec implements schema-directed row serialization: each column's
// value is encoded by its declared semantic type, not its dynamic Go shape.
// Dates become millisecond epochs, vectors become packed little-endian
// float32 arrays, json-blobs are re-encoded to canonical text.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// Envelope is the on-disk shape of one encrypted field: key-id, nonce,
// ciphertext, tag, all base64url for nonce/ciphertext/tag.
type Envelope struct {
	KeyID      string `json:"k"`
	Nonce      string `json:"n"`
	Ciphertext string `json:"c"`
	Tag        string `json:"t"`
}

// EncodeValue renders v to its canonical wire form for non-sensitive
// storage. Sensitive columns never reach this path directly; the caller
// seals the plaintext bytes produced here into an Envelope first.
func EncodeValue(v types.Value) (json.RawMessage, error) {
	switch v.Type {
	case types.ColString:
		s, _ := v.AsString()
		return json.Marshal(s)
	case types.ColNumber:
		n, _ := v.AsNumber()
		return json.Marshal(n)
	case types.ColInteger:
		i, _ := v.AsInteger()
		return json.Marshal(i)
	case types.ColBoolean:
		b, _ := v.AsBoolean()
		return json.Marshal(b)
	case types.ColDate:
		t, _ := v.AsDate()
		return json.Marshal(t.UnixMilli())
	case types.ColJSON:
		raw, _ := v.AsJSON()
		var buf map[string]any
		// Re-encode through a generic value to obtain a canonical form; a
		// JSON blob that is itself a scalar or array still round-trips via
		// json.RawMessage below.
		if json.Unmarshal(raw, &buf) == nil {
			return json.Marshal(buf)
		}
		return json.RawMessage(raw), nil
	case types.ColBytes:
		b, _ := v.AsBytes()
		return json.Marshal(base64.StdEncoding.EncodeToString(b))
	case types.ColVector:
		vec, _ := v.AsVector()
		return json.Marshal(base64.StdEncoding.EncodeToString(packVector(vec)))
	default:
		return nil, qerr.New(qerr.ValidationFailed, "codec.EncodeValue", "unknown column type "+string(v.Type))
	}
}

// DecodeValue parses raw back into a typed Value per ct.
func DecodeValue(ct types.ColumnType, raw json.RawMessage) (types.Value, error) {
	switch ct {
	case types.ColString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Value{}, err
		}
		return types.StringValue(s), nil
	case types.ColNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return types.Value{}, err
		}
		return types.NumberValue(n), nil
	case types.ColInteger:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return types.Value{}, err
		}
		return types.IntegerValue(i), nil
	case types.ColBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return types.Value{}, err
		}
		return types.BooleanValue(b), nil
	case types.ColDate:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return types.Value{}, err
		}
		return types.DateValue(time.UnixMilli(ms)), nil
	case types.ColJSON:
		return types.JSONValue(raw), nil
	case types.ColBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Value{}, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return types.Value{}, err
		}
		return types.BytesValue(b), nil
	case types.ColVector:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Value{}, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return types.Value{}, err
		}
		return types.VectorValue(unpackVector(b)), nil
	default:
		return types.Value{}, qerr.New(qerr.ValidationFailed, "codec.DecodeValue", "unknown column type "+string(ct))
	}
}

func packVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

