package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceStringList(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    []string
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"typed slice", []string{"a", "b"}, []string{"a", "b"}, false},
		{"json array", []interface{}{"a", "b"}, []string{"a", "b"}, false},
		{"scalar string", "solo", []string{"solo"}, false},
		{"comma joined", "a, b ,c", []string{"a", "b", "c"}, false},
		{"bracketed", `["a", 'b', c]`, []string{"a", "b", "c"}, false},
		{"empty string", "", nil, false},
		{"mixed types", []interface{}{"a", 1}, nil, true},
		{"wrong shape", 42, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CoerceStringList("f", tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerceInt64List(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    []int64
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"json array of floats", []interface{}{float64(1), float64(2)}, []int64{1, 2}, false},
		{"bare number", float64(7), []int64{7}, false},
		{"comma joined", "1,2,3", []int64{1, 2, 3}, false},
		{"bracketed", "[4, 5]", []int64{4, 5}, false},
		{"json number", []interface{}{json.Number("9")}, []int64{9}, false},
		{"fractional", float64(1.5), nil, true},
		{"non numeric string", "1,x", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CoerceInt64List("f", tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerceScalars(t *testing.T) {
	s, err := CoerceString("f", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	_, err = CoerceString("f", 3)
	assert.Error(t, err)

	n, ok, err := CoerceInt("f", float64(5))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok, err = CoerceInt("f", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = CoerceInt("f", float64(1.2))
	assert.Error(t, err)

	id, ok, err := CoerceInt64("f", "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	b, ok, err := CoerceBool("f", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b)

	b, ok, err = CoerceBool("f", "false")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, b)

	_, _, err = CoerceBool("f", 1)
	assert.Error(t, err)
}
