package resource

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Queries(t *testing.T) {
	c := NewController(Config{MaxConcurrentQueries: 2})

	require.NoError(t, c.AcquireQuery(context.Background()))
	require.NoError(t, c.AcquireQuery(context.Background()))
	assert.Equal(t, int64(2), c.QueriesInFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireQuery(ctx), context.DeadlineExceeded)

	assert.Equal(t, int64(2), c.QueriesInFlight())

	c.ReleaseQuery()
	assert.Equal(t, int64(1), c.QueriesInFlight())
	require.NoError(t, c.AcquireQuery(context.Background()))
	assert.Equal(t, int64(2), c.QueriesInFlight())
}

func TestController_Unlimited(t *testing.T) {
	c := NewController(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, c.AcquireQuery(context.Background()))
	}
	assert.Equal(t, int64(100), c.QueriesInFlight())
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
	assert.Equal(t, int64(1<<30), c.IOBytes())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireQuery(context.Background()))
	c.ReleaseQuery()
	require.NoError(t, c.AcquireIO(context.Background(), 10))
	assert.Zero(t, c.QueriesInFlight())
	assert.Zero(t, c.IOBytes())
	assert.Equal(t, Config{}, c.Config())
}

func TestController_IOAboveBurst(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Larger than the burst; paced instead of rejected.
	require.NoError(t, c.AcquireIO(context.Background(), (1<<20)+1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 1<<20))
}

func TestRateLimitedIO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(context.Background(), &buf, c)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	r := NewRateLimitedReader(context.Background(), strings.NewReader("world"), c)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
	assert.Equal(t, int64(10), c.IOBytes())
}
