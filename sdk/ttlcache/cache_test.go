package ttlcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_Expiry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	require.NoError(t, c.SetValue("k", "v", 100*time.Millisecond))

	ok, err := c.Contains("k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(150 * time.Millisecond)
	ok, err = c.Contains("k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Get[string](c, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_ExpiryRealClock(t *testing.T) {
	c := New()
	require.NoError(t, c.SetValue("k", 1, 100*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	ok, err := c.Contains("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now), WithDefaultTTL(time.Minute))

	require.NoError(t, c.SetValue("k", 1, 0))
	clock.Advance(59 * time.Second)
	assert.Equal(t, 1, c.Len())
	clock.Advance(time.Second)
	assert.Equal(t, 0, c.Len())

	d := New(WithClock(clock.Now))
	require.NoError(t, d.SetValue("k", 1, -time.Second))
	clock.Advance(DefaultTTL - time.Second)
	assert.Equal(t, 1, d.Len())
}

func TestCache_LazyFactory(t *testing.T) {
	c := New()
	var calls int32
	factory := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	require.NoError(t, c.Set("answer", factory, time.Minute))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "factory runs on first read")

	ok, _ := c.Contains("answer")
	assert.True(t, ok)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "contains does not produce the value")

	for i := 0; i < 3; i++ {
		v, err := Get[int](c, "answer")
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_FactoryConcurrentReads(t *testing.T) {
	c := New()
	var calls int32
	require.NoError(t, c.Set("k", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "v", nil
	}, time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Get[string](c, "k")
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_FactoryErrorEvicts(t *testing.T) {
	c := New()
	boom := errors.New("backend down")
	require.NoError(t, c.Set("k", func() (interface{}, error) { return nil, boom }, time.Minute))

	_, err := Get[string](c, "k")
	assert.ErrorIs(t, err, boom)

	ok, _ := c.Contains("k")
	assert.False(t, ok)
}

func TestGet_CastError(t *testing.T) {
	c := New()
	require.NoError(t, c.SetValue("k", "a string", time.Minute))

	_, err := Get[int](c, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	var castErr *CastError
	require.ErrorAs(t, err, &castErr)
	assert.Equal(t, "k", castErr.Key)
	assert.Equal(t, "int", castErr.Want)
	assert.Equal(t, "string", castErr.Got)
	assert.Equal(t, `ttlcache: value for key "k" is string, not int`, castErr.Error())

	require.NoError(t, c.SetValue("nil", nil, time.Minute))
	_, err = Get[string](c, "nil")
	require.ErrorAs(t, err, &castErr)
	assert.Equal(t, "nil", castErr.Got)
}

func TestGetOrAdd(t *testing.T) {
	t.Run("hit never calls factory", func(t *testing.T) {
		c := New()
		require.NoError(t, c.SetValue("k", "cached", time.Minute))

		v, err := GetOrAdd(c, "k", func() (string, error) {
			t.Fatal("factory must not run on a hit")
			return "", nil
		}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "cached", v)
	})

	t.Run("miss stores result", func(t *testing.T) {
		clock := newFakeClock()
		c := New(WithClock(clock.Now))
		calls := 0
		factory := func() (int, error) {
			calls++
			return calls * 10, nil
		}

		v, err := GetOrAdd(c, "k", factory, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 10, v)

		v, err = GetOrAdd(c, "k", factory, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 10, v)
		assert.Equal(t, 1, calls)

		clock.Advance(2 * time.Second)
		v, err = GetOrAdd(c, "k", factory, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 20, v)
	})

	t.Run("factory error is not cached", func(t *testing.T) {
		c := New()
		_, err := GetOrAdd(c, "k", func() (int, error) { return 0, errors.New("nope") }, time.Minute)
		assert.EqualError(t, err, "nope")
		assert.Equal(t, 0, c.Len())
	})

	t.Run("hit with wrong type", func(t *testing.T) {
		c := New()
		require.NoError(t, c.SetValue("k", 1, time.Minute))
		_, err := GetOrAdd(c, "k", func() (string, error) { return "x", nil }, time.Minute)
		var castErr *CastError
		assert.ErrorAs(t, err, &castErr)
	})

	t.Run("nil factory", func(t *testing.T) {
		_, err := GetOrAdd[int](New(), "k", nil, time.Minute)
		assert.ErrorIs(t, err, ErrNilFactory)
	})
}

func TestCache_InvalidKey(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.SetValue("", 1, time.Minute), ErrInvalidKey)
	assert.ErrorIs(t, c.Set("k", nil, time.Minute), ErrNilFactory)

	_, err := c.Contains("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, c.Remove(""), ErrInvalidKey)

	_, err = Get[int](c, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = GetOrAdd(c, "", func() (int, error) { return 1, nil }, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCache_Remove(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	require.NoError(t, c.SetValue("k", 1, time.Minute))
	assert.NoError(t, c.Remove("k"))
	assert.ErrorIs(t, c.Remove("k"), ErrNotFound)
	assert.ErrorIs(t, c.Remove("never"), ErrNotFound)

	require.NoError(t, c.SetValue("old", 1, time.Second))
	clock.Advance(time.Minute)
	assert.ErrorIs(t, c.Remove("old"), ErrNotFound)
}

func TestCache_ReplaceAndPurge(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	require.NoError(t, c.SetValue("a", 1, time.Second))
	require.NoError(t, c.SetValue("a", 2, time.Hour))
	require.NoError(t, c.SetValue("b", 3, time.Second))
	require.NoError(t, c.SetValue("c", 4, time.Hour))

	v, err := Get[int](c, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 0, c.Purge())
}

func TestTolerant(t *testing.T) {
	tc := NewTolerant(nil)

	assert.False(t, tc.Contains(""))
	assert.False(t, tc.Contains("missing"))
	assert.NotPanics(t, func() {
		tc.Remove("")
		tc.Remove("missing")
	})

	require.NoError(t, tc.SetValue("k", "v", time.Minute))
	assert.True(t, tc.Contains("k"))

	v, err := Get[string](tc.Cache, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	tc.Remove("k")
	assert.False(t, tc.Contains("k"))

	assert.ErrorIs(t, tc.SetValue("", 1, time.Minute), ErrInvalidKey)
}
