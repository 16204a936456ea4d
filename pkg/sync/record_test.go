package sync

import (
	"testing"
	"time"

	"github.com/quilldb/quilldb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	rec := Record{
		Sequence:     7,
		Table:        "notes",
		Kind:         Update,
		PK:           "abc",
		Before:       types.Row{"title": types.StringValue("old")},
		After:        types.Row{"title": types.StringValue("new"), "views": types.IntegerValue(3)},
		CommittedAt:  time.Now().UTC().Truncate(time.Millisecond),
		OriginDevice: "device-a",
	}

	data, err := encodeRecord(rec)
	require.NoError(t, err)

	decoded, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.Sequence, decoded.Sequence)
	assert.Equal(t, rec.Table, decoded.Table)
	assert.Equal(t, rec.Kind, decoded.Kind)
	assert.Equal(t, rec.PK, decoded.PK)
	assert.Equal(t, rec.CommittedAt, decoded.CommittedAt)
	assert.Equal(t, rec.OriginDevice, decoded.OriginDevice)

	title, ok := decoded.After["title"].AsString()
	require.True(t, ok)
	assert.Equal(t, "new", title)
	views, ok := decoded.After["views"].AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 3, views)

	oldTitle, ok := decoded.Before["title"].AsString()
	require.True(t, ok)
	assert.Equal(t, "old", oldTitle)
}

func TestEncodeDecodeRecordHandlesNilBeforeAfter(t *testing.T) {
	rec := Record{Sequence: 1, Table: "notes", Kind: Delete, PK: "x", CommittedAt: time.Now().UTC(), OriginDevice: "device-a"}
	data, err := encodeRecord(rec)
	require.NoError(t, err)
	decoded, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.After)
}

func TestSequenceKeyOrdersByteWise(t *testing.T) {
	a := sequenceKey(1)
	b := sequenceKey(2)
	c := sequenceKey(256)
	assert.Less(t, string(a), string(b))
	assert.Less(t, string(b), string(c))
}
