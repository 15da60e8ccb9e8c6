package statuscache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCachesWithinTTL(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock, 5*time.Second)

	calls := 0
	fetch := func() (bool, error) {
		calls++
		return true, nil
	}

	v, err := Get(c, "active", fetch)
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 1, calls)

	// Just inside the TTL: served from cache.
	mock.Add(5*time.Second - time.Millisecond)
	v, err = Get(c, "active", fetch)
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 1, calls)

	// Past the TTL: re-fetched.
	mock.Add(2 * time.Millisecond)
	_, err = Get(c, "active", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestInvalidateAllForcesRefetch(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock, 5*time.Second)

	calls := 0
	fetch := func() (string, error) {
		calls++
		return "v", nil
	}

	_, err := Get(c, "config", fetch)
	require.NoError(t, err)
	c.InvalidateAll()

	_, err = Get(c, "config", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchErrorNotCached(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock, 5*time.Second)

	calls := 0
	fetch := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("probe failed")
		}
		return 7, nil
	}

	_, err := Get(c, "clients", fetch)
	require.Error(t, err)

	v, err := Get(c, "clients", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestKeysAreIndependent(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock, 5*time.Second)

	a, err := Get(c, "a", func() (int, error) { return 1, nil })
	require.NoError(t, err)
	b, err := Get(c, "b", func() (int, error) { return 2, nil })
	require.NoError(t, err)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestConcurrentReadsAndInvalidation(t *testing.T) {
	c := New(clock.New(), 50*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				v, err := Get(c, "state", func() (bool, error) { return true, nil })
				if err != nil || !v {
					t.Error("unexpected cache result")
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			c.InvalidateAll()
		}
	}()
	wg.Wait()
}
