package distctx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vispipe.io/engine/transport"
)

func newCluster(t *testing.T, size int) []*Context {
	t.Helper()
	locals := transport.NewLocalCluster(size)
	ctxs := make([]*Context, size)
	for i, l := range locals {
		ctxs[i] = New(l)
	}
	return ctxs
}

func TestRankAndSize(t *testing.T) {
	ctxs := newCluster(t, 3)
	for i, c := range ctxs {
		assert.Equal(t, i, c.Rank())
		assert.Equal(t, 3, c.Size())
	}
}

func TestBroadcastDeliversRootValueToAllRanks(t *testing.T) {
	ctxs := newCluster(t, 3)
	var wg sync.WaitGroup
	got := make([]int, 3)
	for i, c := range ctxs {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Broadcast(context.Background(), c, 0, 42)
			require.NoError(t, err)
			got[i] = v
		}()
	}
	wg.Wait()
	for i, v := range got {
		assert.Equal(t, 42, v, "rank %d", i)
	}
}

func TestBroadcastSingleRankIsNoOp(t *testing.T) {
	ctxs := newCluster(t, 1)
	v, err := Broadcast(context.Background(), ctxs[0], 0, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestAllToAllExchangesPairwiseValues(t *testing.T) {
	ctxs := newCluster(t, 3)
	var wg sync.WaitGroup
	results := make([][]int, 3)
	for i, c := range ctxs {
		i, c := i, c
		send := []int{i*10 + 0, i*10 + 1, i*10 + 2}
		wg.Add(1)
		go func() {
			defer wg.Done()
			recv, err := AllToAll(context.Background(), c, send)
			require.NoError(t, err)
			results[i] = recv
		}()
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, j*10+i, results[i][j], "rank %d's recvbuf[%d]", i, j)
		}
	}
}

func TestReduceFoldsInRankOrderAtRoot(t *testing.T) {
	ctxs := newCluster(t, 4)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var rootResult []int
	var rootOK bool
	concat := func(acc, next int) int { return acc*10 + next }

	for i, c := range ctxs {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, ok, err := Reduce(context.Background(), c, 0, i+1, concat)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				rootResult = append(rootResult, result)
				rootOK = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.True(t, rootOK)
	require.Len(t, rootResult, 1)
	// root local=1, then folds ranks 1,2,3 (values 2,3,4) in order: ((1*10+2)*10+3)*10+4
	assert.Equal(t, 1234, rootResult[0])
}

func TestSendToReceiveFromRoundTrip(t *testing.T) {
	ctxs := newCluster(t, 2)
	done := make(chan error, 1)
	go func() {
		done <- SendTo(context.Background(), ctxs[0], 1, "payload")
	}()
	v, err := ReceiveFrom[string](context.Background(), ctxs[1], 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	require.NoError(t, <-done)
}

func TestReceiveFromBuffersNonMatchingArrivals(t *testing.T) {
	ctxs := newCluster(t, 3)
	require.NoError(t, SendTo(context.Background(), ctxs[2], 0, "from-two"))
	require.NoError(t, SendTo(context.Background(), ctxs[1], 0, "from-one"))

	v, err := ReceiveFrom[string](context.Background(), ctxs[0], 1)
	require.NoError(t, err)
	assert.Equal(t, "from-one", v)

	v, err = ReceiveFrom[string](context.Background(), ctxs[0], 2)
	require.NoError(t, err)
	assert.Equal(t, "from-two", v)
}

func TestBarrierSynchronizesAllRanks(t *testing.T) {
	ctxs := newCluster(t, 3)
	var mu sync.Mutex
	arrived := 0
	var wg sync.WaitGroup
	for _, c := range ctxs {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			arrived++
			mu.Unlock()
			require.NoError(t, c.Barrier(context.Background()))
			// every rank must observe every other rank having arrived
			mu.Lock()
			n := arrived
			mu.Unlock()
			assert.Equal(t, 3, n)
		}()
	}
	wg.Wait()
}
