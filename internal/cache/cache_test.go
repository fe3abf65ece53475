package cache

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionmap/internal/metrics"
)

func TestKey(t *testing.T) {
	type opts struct {
		Units    string
		Decimals int
	}

	a := Key("render", "abc", "ITL1", opts{"£", 1})
	b := Key("render", "abc", "ITL1", opts{"£", 1})
	c := Key("render", "abc", "ITL1", opts{"£", 2})
	d := Key("boundary", "abc", "ITL1", opts{"£", 1})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "render:"))
	assert.True(t, strings.HasPrefix(d, "boundary:"))
	assert.Equal(t, strings.TrimPrefix(a, "render:"), strings.TrimPrefix(d, "boundary:"))
}

func TestKey_PartBoundaries(t *testing.T) {
	assert.NotEqual(t, Key("p", "ab", "c"), Key("p", "a", "bc"))
	assert.NotEqual(t, Key("p", []float64{1, 2}), Key("p", []float64{1, 2.5}))
}

func TestGet_MissThenHit(t *testing.T) {
	c := New("test_miss_hit")
	calls := 0
	build := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := Get(c, "k", build)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Get(c, "k", build)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	assert.Equal(t, 1, calls)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("test_miss_hit")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("test_miss_hit")), 0.001)
}

func TestGet_ErrorNotCached(t *testing.T) {
	c := New("test_error")
	boom := errors.New("boom")

	_, err := Get(c, "k", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Entries)

	v, err := Get(c, "k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGet_ConcurrentBuildsShared(t *testing.T) {
	c := New("test_concurrent")
	var calls atomic.Int32
	release := make(chan struct{})

	build := func() (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Get(c, "shared", build)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestInvalidate(t *testing.T) {
	c := New("test_invalidate")
	for _, k := range []string{Key("render", 1), Key("render", 2), Key("boundary", 1)} {
		_, err := Get(c, k, func() (bool, error) { return true, nil })
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Stats().Entries)

	c.Invalidate("render:")
	assert.Equal(t, 1, c.Stats().Entries)

	c.Invalidate("boundary:")
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestStats_Empty(t *testing.T) {
	stats := New("test_empty").Stats()
	assert.Zero(t, stats.HitRate)
	assert.Zero(t, stats.Entries)
}
