package query

import (
	"encoding/binary"
	"strconv"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// pkString renders a primary-key value to the string form used to key the
// in-memory indexes (which are keyed by string PK regardless of the
// column's declared semantic type).
func pkString(v types.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	if i, ok := v.AsInteger(); ok {
		return strconv.FormatInt(i, 10)
	}
	return ""
}

// pkBytes renders a primary-key value to its KV key encoding. String keys
// encode as their raw bytes (natural lexical KV order); integer keys encode
// as big-endian with the sign bit flipped so negative keys sort before
// positive ones under byte-wise comparison. Any other PK value type is
// rejected here with ValidationFailed.
func pkBytes(v types.Value) ([]byte, error) {
	switch v.Type {
	case types.ColString:
		s, _ := v.AsString()
		if s == "" {
			return nil, qerr.New(qerr.ValidationFailed, "query.pkBytes", "primary key must not be empty")
		}
		return []byte(s), nil
	case types.ColInteger:
		i, _ := v.AsInteger()
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i)^(1<<63))
		return buf, nil
	default:
		return nil, qerr.New(qerr.ValidationFailed, "query.pkBytes", "primary key column must be string or integer")
	}
}
