package transport

import (
	"sync"

	"github.com/streadway/amqp"
)

// mockBroker is a minimal in-memory stand-in for a RabbitMQ broker: named
// queues backed by buffered channels, enough to exercise AMQPTransport's
// queue-naming and default-exchange routing without a real server.
type mockBroker struct {
	mu     sync.Mutex
	queues map[string]chan amqp.Delivery
}

func newMockBroker() *mockBroker {
	return &mockBroker{queues: make(map[string]chan amqp.Delivery)}
}

func (b *mockBroker) queue(name string) chan amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan amqp.Delivery, 64)
		b.queues[name] = q
	}
	return q
}

// sharedMockChannel implements AMQPChannel against a mockBroker, so
// multiple AMQPTransport instances dialing the same broker observe each
// other's published messages.
type sharedMockChannel struct {
	broker *mockBroker
}

func (c *sharedMockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.broker.queue(name)
	return amqp.Queue{Name: name}, nil
}

func (c *sharedMockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.broker.queue(key) <- amqp.Delivery{Headers: msg.Headers, Body: msg.Body}
	return nil
}

func (c *sharedMockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.broker.queue(queue), nil
}

func (c *sharedMockChannel) QueueInspect(name string) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (c *sharedMockChannel) Close() error { return nil }
