package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Fingerprint canonicalizes (table, queryText, options) into a stable cache
// key: options are marshaled with sorted map keys so two calls with the
// same logical options, built in a different order, collide correctly.
func Fingerprint(table, queryText string, options map[string]any) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, options[k])
	}
	optBytes, _ := json.Marshal(ordered)

	h := sha256.New()
	h.Write([]byte(table))
	h.Write([]byte{0})
	h.Write([]byte(queryText))
	h.Write([]byte{0})
	h.Write(optBytes)
	return hex.EncodeToString(h.Sum(nil))
}
