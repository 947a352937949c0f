package table

import (
	"encoding/json"
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordID(t *testing.T) {
	cases := []struct {
		id    string
		shard *int
	}{
		{id: "0.abc", shard: pointer.ToInt(0)},
		{id: "12.5b1c0a9e-1111-4222-8333-444455556666", shard: pointer.ToInt(12)},
		{id: "3.", shard: pointer.ToInt(3)},
		{id: "1.2.3", shard: pointer.ToInt(1)},
		{id: "", shard: nil},
		{id: ".abc", shard: nil},
		{id: "abc", shard: nil},
		{id: "+1.abc", shard: nil},
		{id: "-1.abc", shard: nil},
		{id: "1e3.abc", shard: nil},
		{id: "99999999999999999999999.abc", shard: nil},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			shardIndex, err := ParseRecordID(tc.id)
			if tc.shard == nil {
				assert.ErrorIs(t, err, ErrMalformedIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, *tc.shard, shardIndex)
		})
	}
}

func TestNewRecordID(t *testing.T) {
	first, err := NewRecordID(4)
	require.NoError(t, err)
	second, err := NewRecordID(4)
	require.NoError(t, err)

	assert.Regexp(t, recordIDRe, first)
	assert.NotEqual(t, first, second)

	shardIndex, err := ParseRecordID(first)
	require.NoError(t, err)
	assert.Equal(t, 4, shardIndex)
}

func TestDecodeRecord(t *testing.T) {
	record, err := DecodeRecord(json.RawMessage(` {"_id": "0.x", "tags": ["a"]}`))
	require.NoError(t, err)

	id, err := record.ID()
	require.NoError(t, err)
	assert.Equal(t, "0.x", id)

	_, err = DecodeRecord(json.RawMessage(`[1, 2]`))
	assert.Error(t, err)

	record, err = DecodeRecord(json.RawMessage(`{"_id": 5}`))
	require.NoError(t, err)
	_, err = record.ID()
	assert.Error(t, err)
}
