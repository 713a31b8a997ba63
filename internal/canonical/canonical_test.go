package canonical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"float slice", []float64{1, 2.5, -3}, "[1,2.5,-3]"},
		{"mixed array", []any{1, "a", true, 0.25}, `[1,"a",true,0.25]`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"control escaped", "a\nb", `"a\nb"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{0.1, "0.1"},
		{math.Copysign(0, -1), "0"},
		{-2.5, "-2.5"},
		{1.0 / 3, "0.3333333333333333"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1e-6, "0.000001"},
		{1e-7, "1e-7"},
		{5e-324, "5e-324"},
		{1.7976931348623157e308, "1.7976931348623157e+308"},
		{-19.739208802178716, "-19.739208802178716"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := FormatFloat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalRejects(t *testing.T) {
	_, err := Marshal(nil)
	assert.ErrorContains(t, err, "null")

	_, err = Marshal(map[string]any{"a": nil})
	assert.ErrorContains(t, err, "null")

	_, err = Marshal(math.NaN())
	assert.ErrorContains(t, err, "non-finite")

	_, err = Marshal([]float64{1, math.Inf(1)})
	assert.ErrorContains(t, err, "array[1]")

	var p *struct{}
	_, err = Marshal(p)
	assert.Error(t, err)

	_, err = Marshal(make(chan int))
	assert.Error(t, err)
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  3,
	}
	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":3,"zebra":1}`, string(result))
}

func TestMarshalUTF16KeyOrder(t *testing.T) {
	// U+1F600 is a surrogate pair starting 0xD83D, which sorts before
	// U+FFFD in UTF-16 even though its UTF-8 encoding sorts after.
	obj := map[string]any{"\uFFFD": 2, "\U0001F600": 1}
	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uFFFD\":2}", string(result))
}

func TestMarshalNFC(t *testing.T) {
	decomposed, err := Marshal("e\u0301")
	require.NoError(t, err)
	composed, err := Marshal("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalLineSeparators(t *testing.T) {
	result, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by u2028 stays escaped.
	result, err = Marshal(`a\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028"`, string(result))
}

func TestMarshalStruct(t *testing.T) {
	type inner struct {
		K float64 `json:"k"`
	}
	type doc struct {
		B     float64           `json:"b"`
		A     string            `json:"a"`
		N     int               `json:"n"`
		Inner inner             `json:"inner"`
		Skip  *inner            `json:"skip,omitempty"`
		M     map[string]string `json:"m"`
	}
	result, err := Marshal(doc{B: 0.5, A: "x", N: 3, Inner: inner{K: 1e-9}, M: map[string]string{"y": "1", "x": "2"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":0.5,"inner":{"k":1e-9},"m":{"x":"2","y":"1"},"n":3}`, string(result))
}

func TestHash(t *testing.T) {
	assert.Equal(t,
		"ec875596c292b9dcd97d75197e95b71d15a22670163f60f22c6094e7073e0866",
		Hash(DomainProblem, []byte(`{"a":1}`)))

	// Domain separation: same data, different domain.
	assert.Equal(t,
		"9ba487b548d32e1032b458b5c15e4a8510f0987c00c79d06c27bde174e437ceb",
		Hash(DomainSnapshot, []byte(`{"a":1}`)))
}

func TestHashValueIgnoresKeyOrder(t *testing.T) {
	a, err := HashValue(DomainProblem, map[string]any{"x": 1, "y": []any{0.5, "s"}})
	require.NoError(t, err)
	b, err := HashValue(DomainProblem, map[string]any{"y": []any{0.5, "s"}, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	_, err = HashValue(DomainProblem, math.Inf(-1))
	assert.ErrorContains(t, err, DomainProblem)
}

func TestSnapshotHash(t *testing.T) {
	h, err := SnapshotHash(0.5, []float64{1, 2.5, -3})
	require.NoError(t, err)
	assert.Equal(t, "82c2827c7fd164ca43e41af441ee261a0901836a2fa73dd3330b4b5958a607d2", h)

	_, err = SnapshotHash(0, []float64{math.NaN()})
	assert.Error(t, err)
}
