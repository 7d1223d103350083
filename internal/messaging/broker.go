package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

// Channel is the subset of *amqp.Channel used by the messaging layer
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueInspect(name string) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Cancel(consumer string, noWait bool) error
	NotifyReturn(c chan amqp.Return) chan amqp.Return
	Close() error
}

// Connection is a broker connection able to open channels
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// ConnectionFactory hands out broker connections. One factory is created per
// process and passed to every component that talks to the broker.
type ConnectionFactory interface {
	Connect() (Connection, error)
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

// DialFactory dials RabbitMQ with exponential backoff
type DialFactory struct {
	URL         string
	Heartbeat   time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *logrus.Entry

	dial func(url string, cfg amqp.Config) (*amqp.Connection, error)
	mu   sync.Mutex
	open []Connection
}

// NewDialFactory creates a factory for url
func NewDialFactory(url string, heartbeat time.Duration, maxAttempts int, baseDelay time.Duration, logger *logrus.Entry) *DialFactory {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &DialFactory{
		URL:         url,
		Heartbeat:   heartbeat,
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Logger:      logger,
		dial:        amqp.DialConfig,
	}
}

// Connect dials the broker, retrying with a doubling delay (1x, 2x, 4x ...)
func (f *DialFactory) Connect() (Connection, error) {
	var lastErr error
	for i := 0; i < f.MaxAttempts; i++ {
		conn, err := f.dial(f.URL, amqp.Config{Heartbeat: f.Heartbeat, Locale: "en_US"})
		if err == nil {
			c := &amqpConnection{conn: conn}
			f.mu.Lock()
			f.open = append(f.open, c)
			f.mu.Unlock()
			return c, nil
		}
		lastErr = err

		if i < f.MaxAttempts-1 {
			wait := f.BaseDelay * time.Duration(1<<uint(i))
			f.Logger.Warnf("⚠️ Failed to connect to RabbitMQ (attempt %d/%d), retrying in %v: %v", i+1, f.MaxAttempts, wait, err)
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", f.MaxAttempts, lastErr)
}

// Close closes every connection the factory handed out
func (f *DialFactory) Close() error {
	f.mu.Lock()
	open := f.open
	f.open = nil
	f.mu.Unlock()

	var firstErr error
	for _, c := range open {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// newConsumerTag builds a unique consumer tag so consumers can be cancelled
func newConsumerTag(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
