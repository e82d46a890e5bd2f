package channel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldera-systems/greenproc/channel"
	"github.com/caldera-systems/greenproc/deadline"
)

func TestSendRecvRoundTrip(t *testing.T) {
	ch := channel.New[int](0, nil)
	assert.Equal(t, channel.Success, ch.Send(42))
	v, code := ch.Recv()
	assert.Equal(t, channel.Item, code)
	assert.Equal(t, 42, v)
}

func TestUnboundedNeverBlocksOnSend(t *testing.T) {
	ch := channel.New[int](0, nil)
	for i := 0; i < 1000; i++ {
		require.Equal(t, channel.Success, ch.Send(i))
	}
	assert.Equal(t, 1000, ch.Len())
}

func TestBoundedTrySendWouldBlock(t *testing.T) {
	ch := channel.New[int](1, nil)
	assert.Equal(t, channel.Sent, ch.TrySend(1))
	assert.Equal(t, channel.WouldBlock, ch.TrySend(2))

	v, code := ch.TryRecv()
	assert.Equal(t, channel.Item, code)
	assert.Equal(t, 1, v)
}

func TestTryRecvEmptyOpenIsTimeout(t *testing.T) {
	ch := channel.New[int](0, nil)
	_, code := ch.TryRecv()
	assert.Equal(t, channel.Timeout, code)
}

func TestSendDeadlineTimeoutOnFull(t *testing.T) {
	ch := channel.New[int](1, nil)
	require.Equal(t, channel.Success, ch.Send(1))

	start := time.Now()
	code := ch.SendDeadline(2, deadline.FromMS(50))
	elapsed := time.Since(start)

	assert.Equal(t, channel.Timeout, code)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, 1, ch.Len()) // item2 never consumed or enqueued
}

func TestRecvDeadlineTimeoutOnEmpty(t *testing.T) {
	ch := channel.New[int](0, nil)
	start := time.Now()
	_, code := ch.RecvDeadline(deadline.FromMS(50))
	elapsed := time.Since(start)

	assert.Equal(t, channel.Timeout, code)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}

func TestCloseDrainsThenClosedEmpty(t *testing.T) {
	ch := channel.New[int](0, nil)
	require.Equal(t, channel.Success, ch.Send(1))
	require.Equal(t, channel.Success, ch.Send(2))
	ch.Close()

	v, code := ch.Recv()
	assert.Equal(t, channel.Item, code)
	assert.Equal(t, 1, v)

	v, code = ch.Recv()
	assert.Equal(t, channel.Item, code)
	assert.Equal(t, 2, v)

	_, code = ch.Recv()
	assert.Equal(t, channel.ClosedEmpty, code)
}

func TestSendToClosedInvokesDestructorAndReturnsClosed(t *testing.T) {
	var destructed []int
	ch := channel.New[int](0, func(v int) { destructed = append(destructed, v) })
	ch.Close()

	code := ch.Send(99)
	assert.Equal(t, channel.Closed, code)
	assert.Equal(t, []int{99}, destructed)
}

func TestDestructorFiresOnceForRemainingItemsAtClose(t *testing.T) {
	var mu sync.Mutex
	var destructed []int
	ch := channel.New[int](0, func(v int) {
		mu.Lock()
		destructed = append(destructed, v)
		mu.Unlock()
	})
	require.Equal(t, channel.Success, ch.Send(1))
	require.Equal(t, channel.Success, ch.Send(2))
	require.Equal(t, channel.Success, ch.Send(3))

	ch.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{1, 2, 3}, destructed)
}

func TestCloseIsIdempotent(t *testing.T) {
	ch := channel.New[int](0, nil)
	ch.Close()
	assert.NotPanics(t, func() { ch.Close() })
}

func TestTwoSendersPreserveEachSendersOrder(t *testing.T) {
	ch := channel.New[string](0, nil)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ch.Send("a")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ch.Send("b")
		}
	}()
	wg.Wait()

	var aCount, bCount int
	for i := 0; i < 100; i++ {
		v, code := ch.Recv()
		require.Equal(t, channel.Item, code)
		if v == "a" {
			aCount++
		} else {
			bCount++
		}
	}
	assert.Equal(t, 50, aCount)
	assert.Equal(t, 50, bCount)
}

func TestBlockingSendUnblocksOnRecv(t *testing.T) {
	ch := channel.New[int](1, nil)
	require.Equal(t, channel.Sent, ch.TrySend(1))

	done := make(chan channel.Code, 1)
	go func() {
		done <- ch.Send(2)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("send should still be blocked")
	default:
	}

	_, code := ch.Recv()
	require.Equal(t, channel.Item, code)

	select {
	case c := <-done:
		assert.Equal(t, channel.Success, c)
	case <-time.After(time.Second):
		t.Fatal("blocked send never completed")
	}
}
