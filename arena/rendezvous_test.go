package arena

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vispipe.io/engine/object"
)

func newTestRendezvous(t *testing.T) *Rendezvous {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRendezvousWithClient(client, "test-arena:")
}

func TestRendezvousPublishAndAttach(t *testing.T) {
	ctx := context.Background()
	r := newTestRendezvous(t)

	src := New(Config{Capacity: 8192, Name: "peer-a"})
	o1 := object.New(object.KindPoints, []byte("coords"), object.Meta{})
	o2 := object.New(object.KindScalarField, []byte("pressure"), object.Meta{})
	require.NoError(t, src.StoreObject(o1))
	require.NoError(t, src.StoreObject(o2))

	require.NoError(t, r.PublishIndex(ctx, src))

	attached, err := r.Attach(ctx, "peer-a", 8192)
	require.NoError(t, err)

	got1, ok, err := attached.GetObject(o1.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, o1.Payload(), got1.Payload())

	got2, ok, err := attached.GetObject(o2.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, o2.Payload(), got2.Payload())

	stats := attached.Stats()
	assert.Equal(t, 2, stats.ObjectCount)
}

func TestRendezvousAttachUnknownArena(t *testing.T) {
	ctx := context.Background()
	r := newTestRendezvous(t)

	_, err := r.Attach(ctx, "does-not-exist", 1024)
	assert.Error(t, err)
}

func TestRendezvousHeartbeat(t *testing.T) {
	ctx := context.Background()
	r := newTestRendezvous(t)

	require.NoError(t, r.Heartbeat(ctx, "peer-a", time.Minute))
}
