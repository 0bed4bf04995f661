package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAgreeOnRecords(t *testing.T) {
	record := map[string]string{
		"title":  "Blue in Green",
		"artist": "Miles Davis",
		"genre":  "Jazz",
	}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data := MustMarshal(c, record)

			// Records decode with either codec.
			for _, other := range []Codec{JSON{}, GoJSON{}} {
				var out map[string]string
				require.NoError(t, other.Unmarshal(data, &out))
				assert.Equal(t, record, out)
			}
		})
	}
}

func TestMustMarshalPanics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
	assert.NotPanics(t, func() { MustMarshal(nil, 1) })
}
