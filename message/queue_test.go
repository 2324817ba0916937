package message

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueSendReceiveFIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Send(&Envelope{Message: New(uint32(i), 1, QuitBody{})})
	}
	assert.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), env.Message.Sender)
	}
}

func TestQueueReceiveBlocksThenWakes(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	done := make(chan *Envelope, 1)
	go func() {
		env, err := q.Receive(ctx)
		require.NoError(t, err)
		done <- env
	}()

	time.Sleep(20 * time.Millisecond)
	q.Send(&Envelope{Message: New(7, 1, QuitBody{})})

	select {
	case env := <-done:
		assert.Equal(t, uint32(7), env.Message.Sender)
	case <-time.After(time.Second):
		t.Fatal("receive did not wake on send")
	}
}

func TestQueueReceiveRespectsContextCancellation(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseDrainsThenErrors(t *testing.T) {
	q := NewQueue()
	q.Send(&Envelope{Message: New(1, 1, QuitBody{})})
	q.Close()

	ctx := context.Background()
	_, err := q.Receive(ctx)
	require.NoError(t, err) // pending envelope still delivered

	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const producers = 50
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Send(&Envelope{Message: New(uint32(i), 1, QuitBody{})})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, producers, q.Len())
}
