package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobby-server/internal/config"
)

func newTestPool() *Pool {
	return NewPool(
		config.PortRange{Start: 20000, End: 20002},
		config.PortRange{Start: 54000, End: 54000},
	)
}

func TestAcquireReturnsLowestFreePort(t *testing.T) {
	pool := newTestPool()

	for _, want := range []uint16{20000, 20001, 20002} {
		got, ok := pool.Acquire(Internal)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := pool.Acquire(Internal)
	assert.False(t, ok, "range should be exhausted")

	pool.Release(Internal, 20001)
	got, ok := pool.Acquire(Internal)
	require.True(t, ok)
	assert.Equal(t, uint16(20001), got, "released port should be reused first")
}

func TestRangesAreIndependent(t *testing.T) {
	pool := newTestPool()

	ext, ok := pool.Acquire(External)
	require.True(t, ok)
	assert.Equal(t, uint16(54000), ext)

	_, ok = pool.Acquire(External)
	assert.False(t, ok)

	_, ok = pool.Acquire(Internal)
	assert.True(t, ok, "external exhaustion must not affect internal")

	assert.Equal(t, 1, pool.InUse(External))
	assert.Equal(t, 1, pool.InUse(Internal))
	assert.Equal(t, 3, pool.Size(Internal))
	assert.Equal(t, 1, pool.Size(External))
}

func TestReleaseIsIdempotent(t *testing.T) {
	pool := newTestPool()

	port, _ := pool.Acquire(Internal)
	assert.Equal(t, 1, pool.InUse(Internal))

	assert.True(t, pool.Release(Internal, port))
	assert.False(t, pool.Release(Internal, port), "second release")
	assert.False(t, pool.Release(External, port), "wrong range")
	assert.False(t, pool.Release(Internal, 1), "foreign port")

	assert.Equal(t, 0, pool.InUse(Internal))
}

func TestAcquiredPortsStayInRange(t *testing.T) {
	bounds := config.PortRange{Start: 65530, End: 65535}
	pool := NewPool(bounds, config.PortRange{Start: 1, End: 1})

	seen := map[uint16]bool{}
	for {
		port, ok := pool.Acquire(Internal)
		if !ok {
			break
		}
		assert.True(t, bounds.Contains(int(port)))
		assert.False(t, seen[port], "port %d handed out twice", port)
		seen[port] = true
	}
	assert.Len(t, seen, bounds.Len())
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "external", External.String())
	assert.Equal(t, "Range(7)", Range(7).String())
}
