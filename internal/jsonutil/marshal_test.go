package jsonutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		want string
	}{
		{
			name: "html characters kept",
			in:   map[string]string{"s": "<a href=\"x\">&</a>"},
			want: `{"s":"<a href=\"x\">&</a>"}`,
		},
		{
			name: "raw message kept",
			in:   map[string]json.RawMessage{"s": json.RawMessage(`"<<>>&&"`)},
			want: `{"s":"<<>>&&"}`,
		},
		{
			name: "raw message compacted",
			in:   map[string]json.RawMessage{"a": json.RawMessage(`[ 1,  2 ]`)},
			want: `{"a":[1,2]}`,
		},
		{
			name: "no trailing newline",
			in:   []int{},
			want: `[]`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Marshal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarshal_SizeMatchesInput(t *testing.T) {
	value := `"` + strings.Repeat("<", 1000) + `"`

	got, err := Marshal(map[string]json.RawMessage{"s": json.RawMessage(value)})
	require.NoError(t, err)
	assert.Len(t, got, len(`{"s":}`)+len(value))
}

func TestMarshal_Error(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
