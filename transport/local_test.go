package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSendReceive(t *testing.T) {
	cluster := NewLocalCluster(3)
	ctx := context.Background()

	require.NoError(t, cluster[0].Send(ctx, 2, []byte("hi")))
	got, err := cluster[2].Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Rank)
	assert.Equal(t, []byte("hi"), got.Data)
}

func TestLocalBroadcastReachesEveryOtherRank(t *testing.T) {
	cluster := NewLocalCluster(3)
	ctx := context.Background()

	require.NoError(t, cluster[0].Broadcast(ctx, []byte("all")))

	for _, rank := range []int{1, 2} {
		got, err := cluster[rank].Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("all"), got.Data)
	}
}

func TestLocalBarrierReleasesAllRanksTogether(t *testing.T) {
	cluster := NewLocalCluster(4)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, len(cluster))
	for i, l := range cluster {
		wg.Add(1)
		go func(i int, l *Local) {
			defer wg.Done()
			errs[i] = l.Barrier(ctx)
		}(i, l)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier did not release all ranks")
	}
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestLocalSendOutOfRangeRank(t *testing.T) {
	cluster := NewLocalCluster(2)
	err := cluster[0].Send(context.Background(), 5, []byte("x"))
	assert.Error(t, err)
}
