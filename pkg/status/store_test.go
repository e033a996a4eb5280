package status_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/pkg/status"
)

func TestSetGetDelete(t *testing.T) {
	s := status.NewStore[string, int]()

	_, ok := s.Get("a")
	assert.False(t, ok)

	s.Set("a", 1)
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	s.Delete("a")
	_, ok = s.Get("a")
	assert.False(t, ok)

	s.Set("b", 2)
	s.Clear()
	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestWaitReturnsExistingStatus(t *testing.T) {
	s := status.NewStore[int, string]()
	s.Set(7, "done")

	v, err := s.Wait(context.Background(), 7, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestWaitWakesOnSet(t *testing.T) {
	s := status.NewStore[string, string]()

	var wg sync.WaitGroup
	wg.Add(1)
	var (
		got    string
		gotErr error
	)
	go func() {
		defer wg.Done()
		got, gotErr = s.Wait(context.Background(), "ready", 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Set("ready", "yes")
	wg.Wait()

	require.NoError(t, gotErr)
	assert.Equal(t, "yes", got)
}

func TestWaitTimesOut(t *testing.T) {
	s := status.NewStore[string, bool]()

	start := time.Now()
	_, err := s.Wait(context.Background(), "never", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitHonorsCancellation(t *testing.T) {
	s := status.NewStore[string, bool]()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.Wait(ctx, "never", 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, status.ErrTimeout))
}

func TestWaitForMatch(t *testing.T) {
	s := status.NewStore[string, int]()
	s.Set("count", 1)

	go func() {
		for i := 2; i <= 3; i++ {
			time.Sleep(10 * time.Millisecond)
			s.Set("count", i)
		}
	}()

	v, err := s.WaitFor(context.Background(), "count", func(n int) bool { return n >= 3 }, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
