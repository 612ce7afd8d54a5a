package pending

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := New(4)

	rec, err := s.CreateIfAbsent(1234)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.ArgsCount)

	got, ok := s.Get(1234)
	require.True(t, ok)
	assert.Same(t, rec, got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetMissing(t *testing.T) {
	s := New(4)

	got, ok := s.Get(9999)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := New(4)

	first, err := s.CreateIfAbsent(1234)
	require.NoError(t, err)
	first.ArgsCount = 3

	_, err = s.CreateIfAbsent(1234)
	require.ErrorIs(t, err, ErrExists)

	got, ok := s.Get(1234)
	require.True(t, ok)
	assert.Equal(t, int32(3), got.ArgsCount, "duplicate must not reset the pending record")
	assert.Equal(t, 1, s.Len())
}

func TestStore_CapacityExhausted(t *testing.T) {
	s := New(2)

	_, err := s.CreateIfAbsent(1)
	require.NoError(t, err)
	_, err = s.CreateIfAbsent(2)
	require.NoError(t, err)

	_, err = s.CreateIfAbsent(3)
	require.ErrorIs(t, err, ErrFull)

	_, ok := s.Get(3)
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())

	// Freeing a slot makes room again.
	s.Remove(1)
	_, err = s.CreateIfAbsent(3)
	require.NoError(t, err)
}

func TestStore_DefaultCapacity(t *testing.T) {
	s := New(0)
	assert.Equal(t, int64(DefaultCapacity), s.capacity)
}

func TestStore_TakeIsOneShot(t *testing.T) {
	s := New(4)
	_, err := s.CreateIfAbsent(7)
	require.NoError(t, err)

	_, ok := s.Take(7)
	assert.True(t, ok)

	_, ok = s.Take(7)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_RemoveAbsentIsNoop(t *testing.T) {
	s := New(4)
	s.Remove(42)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Reap(t *testing.T) {
	s := New(8)
	base := time.Unix(1000, 0)

	s.now = func() time.Time { return base }
	_, err := s.CreateIfAbsent(1)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(time.Minute) }
	_, err = s.CreateIfAbsent(2)
	require.NoError(t, err)

	reaped := s.Reap(base.Add(30 * time.Second))
	assert.Equal(t, 1, reaped)

	_, ok := s.Get(1)
	assert.False(t, ok)
	_, ok = s.Get(2)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ConcurrentTakeSingleWinner(t *testing.T) {
	s := New(DefaultCapacity)

	for key := uint32(0); key < 200; key++ {
		_, err := s.CreateIfAbsent(key)
		require.NoError(t, err)
	}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := uint32(0); key < 200; key++ {
				if _, ok := s.Take(key); ok {
					wins.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), wins.Load())
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConcurrentCreateRespectsCapacity(t *testing.T) {
	s := New(100)

	var created atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				//nolint:gosec // bounded test keys
				if _, err := s.CreateIfAbsent(uint32(w*1000 + i)); err == nil {
					created.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(100), created.Load())
	assert.Equal(t, 100, s.Len())
}
