package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFIFO tests that values come out in the order they went in
func TestFIFO(t *testing.T) {
	t.Parallel()

	tx, rx := New[int]()
	for i := 0; i < 1000; i++ {
		require.True(t, tx.TrySend(i))
	}
	assert.Equal(t, 1000, rx.Len())

	for i := 0; i < 1000; i++ {
		v, err := rx.TryRecv()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}

	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

// TestEmptyIsNotTerminal tests that an empty queue keeps accepting values
func TestEmptyIsNotTerminal(t *testing.T) {
	t.Parallel()

	tx, rx := New[string]()

	_, err := rx.TryRecv()
	require.ErrorIs(t, err, ErrEmpty)

	require.True(t, tx.TrySend("late"))
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

// TestSenderCloseDrainsFirst tests that buffered values survive a sender close
func TestSenderCloseDrainsFirst(t *testing.T) {
	t.Parallel()

	tx, rx := New[int]()
	require.True(t, tx.TrySend(1))
	require.True(t, tx.TrySend(2))
	tx.Close()

	assert.False(t, tx.TrySend(3), "send after close must fail")
	assert.True(t, tx.Closed())

	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	for i := 0; i < 3; i++ {
		_, err = rx.TryRecv()
		assert.ErrorIs(t, err, ErrDisconnected, "closed queue must never report empty")
	}
}

// TestReceiverClose tests that dropping the receiver rejects sends and discards buffered values
func TestReceiverClose(t *testing.T) {
	t.Parallel()

	tx, rx := New[int]()
	require.True(t, tx.TrySend(1))
	rx.Close()
	rx.Close()

	assert.False(t, tx.TrySend(2))
	assert.True(t, tx.Closed())
	assert.Equal(t, 0, tx.Len())

	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrDisconnected)
}

// TestDone tests that Done closes when either end hangs up
func TestDone(t *testing.T) {
	t.Parallel()

	closed := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	tx, rx := New[int]()
	require.True(t, tx.TrySend(1))
	assert.False(t, closed(rx.Done()))

	tx.Close()
	tx.Close()
	assert.True(t, closed(rx.Done()))
	v, err := rx.TryRecv()
	require.NoError(t, err, "buffered values survive the hang-up")
	assert.Equal(t, 1, v)

	tx, rx = New[int]()
	rx.Close()
	tx.Close()
	assert.True(t, closed(rx.Done()))
}

// TestRecvWaitsForValue tests the blocking receive used by drivers
func TestRecvWaitsForValue(t *testing.T) {
	t.Parallel()

	tx, rx := New[int]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tx.TrySend(42)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// TestRecvObservesDisconnect tests that a blocked receive returns when the sender closes
func TestRecvObservesDisconnect(t *testing.T) {
	t.Parallel()

	tx, rx := New[int]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tx.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, ErrDisconnected)
}

// TestRecvContextCancel tests that a blocked receive honours its context
func TestRecvContextCancel(t *testing.T) {
	t.Parallel()

	_, rx := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestReadySignal tests that Ready fires after a push and after a close
func TestReadySignal(t *testing.T) {
	t.Parallel()

	tx, rx := New[int]()

	tx.TrySend(1)
	tx.TrySend(2)
	select {
	case <-rx.Ready():
	case <-time.After(time.Second):
		t.Fatal("no ready signal after push")
	}

	// Signals coalesce: two pushes, one signal.
	select {
	case <-rx.Ready():
		t.Fatal("expected a single coalesced signal")
	default:
	}

	tx.Close()
	select {
	case <-rx.Ready():
	case <-time.After(time.Second):
		t.Fatal("no ready signal after close")
	}
}

// TestConcurrentProducers tests that many producers lose and duplicate nothing
func TestConcurrentProducers(t *testing.T) {
	t.Parallel()

	const producers = 8
	const perProducer = 500

	tx, rx := New[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				tx.TrySend(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()
	tx.Close()

	seen := make(map[int]bool, producers*perProducer)
	last := make(map[int]int, producers)
	for {
		v, err := rx.TryRecv()
		if err != nil {
			require.ErrorIs(t, err, ErrDisconnected)
			break
		}
		require.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true

		// Values of one producer keep their relative order.
		p := v / perProducer
		if prev, ok := last[p]; ok {
			require.Greater(t, v, prev)
		}
		last[p] = v
	}
	assert.Len(t, seen, producers*perProducer)
}

// TestPair tests that the two directions of a pair are independent
func TestPair(t *testing.T) {
	t.Parallel()

	consumer, driver := NewPair[string]()

	require.True(t, consumer.Out.TrySend("up"))
	require.True(t, driver.In.TrySend("down"))

	v, err := driver.Out.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "up", v)

	v, err = consumer.In.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "down", v)

	consumer.Close()
	assert.False(t, driver.In.TrySend("lost"), "inbound send after consumer drop must fail")

	_, err = driver.Out.TryRecv()
	assert.ErrorIs(t, err, ErrDisconnected)

	driver.Close()
	assert.False(t, consumer.Out.TrySend("nope"))
}

// BenchmarkTrySendTryRecv benchmarks a push/pop round trip
func BenchmarkTrySendTryRecv(b *testing.B) {
	tx, rx := New[int]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx.TrySend(i)
		_, _ = rx.TryRecv()
	}
}
