package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeStrings(t *testing.T) {
	assert := assert.New(t)

	// strings pass through raw, never quoted
	for _, s := range []string{"hello", "", "has \"quotes\"", `{"looks":"like json"}`} {
		out, err := Encode(s)
		assert.NoError(err)
		assert.Equal(s, out)
	}
}

func TestEncodeValues(t *testing.T) {
	assert := assert.New(t)

	out, err := Encode(42)
	assert.NoError(err)
	assert.Equal("42", out)

	out, err = Encode(true)
	assert.NoError(err)
	assert.Equal("true", out)

	out, err = Encode(map[string]any{"id": 7})
	assert.NoError(err)
	assert.Equal(`{"id":7}`, out)

	out, err = Encode([]string{"a", "b"})
	assert.NoError(err)
	assert.Equal(`["a","b"]`, out)

	out, err = Encode(nil)
	assert.NoError(err)
	assert.Equal("null", out)

	// unencodable values surface the marshal error
	_, err = Encode(func() {})
	assert.Error(err)
}

func TestDecode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(float64(42), Decode("42"))
	assert.Equal(true, Decode("true"))
	assert.Equal(map[string]any{"id": float64(7)}, Decode(`{"id":7}`))
	assert.Equal([]any{"a", "b"}, Decode(`["a","b"]`))
	assert.Nil(Decode("null"))

	// anything that does not parse as JSON comes back as the raw string
	assert.Equal("hello", Decode("hello"))
	assert.Equal("", Decode(""))
	assert.Equal("{broken", Decode("{broken"))

	// a quoted JSON string decodes to its contents
	assert.Equal("quoted", Decode(`"quoted"`))
}

func TestCodecRoundTrip(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		in   any
		want any
	}{
		{"plain string", "plain string"},
		{42, float64(42)},
		{3.5, 3.5},
		{true, true},
		{map[string]any{"name": "ada", "n": float64(2)}, map[string]any{"name": "ada", "n": float64(2)}},
		{[]any{float64(1), "two", false}, []any{float64(1), "two", false}},
	}
	for _, tc := range cases {
		raw, err := Encode(tc.in)
		assert.NoError(err)
		assert.Equal(tc.want, Decode(raw))
	}
}
