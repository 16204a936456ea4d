package codec

import (
	"encoding/json"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/types"
)

// Seal encrypts plaintext under the currently-active key and returns the
// Envelope to persist. Open decrypts an Envelope, looking the key up by
// KeyID in the caller's key ring.
type Seal func(column string, plaintext []byte) (Envelope, error)
type Open func(column string, env Envelope) ([]byte, error)

// EncodeRow serializes row into the on-disk JSON document for t.PrimaryKey,
// applying Seal to every column flagged sensitive in t.
func EncodeRow(t *schema.TableDef, row types.Row, seal Seal) ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(t.Order))
	for _, col := range t.Order {
		v, present := row[col]
		if !present || v.Null() {
			continue
		}
		encoded, err := EncodeValue(v)
		if err != nil {
			return nil, qerr.Wrap(qerr.ValidationFailed, "codec.EncodeRow", err).WithTable(t.Name).WithColumn(col)
		}
		if t.Sensitive[col] {
			if seal == nil {
				return nil, qerr.New(qerr.ValidationFailed, "codec.EncodeRow", "sensitive column without sealer").WithTable(t.Name).WithColumn(col)
			}
			// Sensitive columns store the sealed envelope of their canonical
			// wire JSON in place of the value — the plaintext never touches disk.
			plain, err := json.Marshal(encoded)
			if err != nil {
				return nil, err
			}
			env, err := seal(col, plain)
			if err != nil {
				return nil, err
			}
			envBytes, err := json.Marshal(env)
			if err != nil {
				return nil, err
			}
			doc[col] = envBytes
		} else {
			doc[col] = encoded
		}
	}
	return json.Marshal(doc)
}

// DecodeRow parses a stored row document back into a typed Row, applying
// Open to every column flagged sensitive in t.
func DecodeRow(t *schema.TableDef, data []byte, open Open) (types.Row, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, qerr.Wrap(qerr.ValidationFailed, "codec.DecodeRow", err).WithTable(t.Name)
	}
	row := make(types.Row, len(doc))
	for col, ct := range t.Columns {
		raw, present := doc[col]
		if !present {
			continue
		}
		if t.Sensitive[col] {
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, qerr.Wrap(qerr.DecryptFailed, "codec.DecodeRow", err).WithTable(t.Name).WithColumn(col)
			}
			plain, err := open(col, env)
			if err != nil {
				return nil, qerr.Wrap(qerr.DecryptFailed, "codec.DecodeRow", err).WithTable(t.Name).WithColumn(col)
			}
			var inner json.RawMessage
			if err := json.Unmarshal(plain, &inner); err != nil {
				return nil, qerr.Wrap(qerr.DecryptFailed, "codec.DecodeRow", err).WithTable(t.Name).WithColumn(col)
			}
			v, err := DecodeValue(ct, inner)
			if err != nil {
				return nil, qerr.Wrap(qerr.ValidationFailed, "codec.DecodeRow", err).WithTable(t.Name).WithColumn(col)
			}
			row[col] = v
			continue
		}
		v, err := DecodeValue(ct, raw)
		if err != nil {
			return nil, qerr.Wrap(qerr.ValidationFailed, "codec.DecodeRow", err).WithTable(t.Name).WithColumn(col)
		}
		row[col] = v
	}
	return row, nil
}

// RawSensitiveFields extracts the Envelope JSON for sensitive columns
// without decrypting — used by tests asserting the raw store never
// contains plaintext, and by the rotation sweep to read ciphertext.
func RawSensitiveFields(t *schema.TableDef, data []byte) (map[string]Envelope, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := map[string]Envelope{}
	for col := range t.Sensitive {
		raw, ok := doc[col]
		if !ok {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		out[col] = env
	}
	return out, nil
}

// ReplaceSensitiveField overwrites the envelope for one sensitive column in
// an already-encoded row document, used by key rotation to rewrite a row
// under the new key without a full decode/re-encode of every column.
func ReplaceSensitiveField(data []byte, col string, env Envelope) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	doc[col] = envBytes
	return json.Marshal(doc)
}
