package taskqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueResolvesFuture(t *testing.T) {
	q := New[int](2)
	f := q.Enqueue(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestConcurrencyBounded(t *testing.T) {
	q := New[struct{}](2)
	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		f := q.Enqueue(context.Background(), func(context.Context) (struct{}, error) {
			n := inFlight.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return struct{}{}, nil
		})
		go func() {
			defer wg.Done()
			_, _ = f.Wait(context.Background())
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, int(maxSeen.Load()), 2)
}

func TestFIFOOrder(t *testing.T) {
	q := New[int](1)
	var order []int
	var mu sync.Mutex
	var futures []*Future[int]

	for i := 0; i < 5; i++ {
		i := i
		futures = append(futures, q.Enqueue(context.Background(), func(context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}
	for _, f := range futures {
		_, _ = f.Wait(context.Background())
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestGetQueueLength(t *testing.T) {
	q := New[int](1)
	block := make(chan struct{})
	f1 := q.Enqueue(context.Background(), func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	// give the dispatcher a moment to pick up f1 so the length reflects f2 only
	time.Sleep(5 * time.Millisecond)
	q.Enqueue(context.Background(), func(context.Context) (int, error) {
		return 2, nil
	})
	require.Equal(t, 1, q.GetQueueLength())
	close(block)
	_, _ = f1.Wait(context.Background())
}
