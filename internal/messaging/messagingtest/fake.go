// Package messagingtest provides in-memory broker fakes for tests.
package messagingtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/streadway/amqp"

	"fund-manager/internal/messaging"
)

// Published is one message captured by a FakeChannel
type Published struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Msg        amqp.Publishing
}

// FakeChannel records every broker operation in order
type FakeChannel struct {
	mu             sync.Mutex
	calls          []string
	queueArgs      map[string]amqp.Table
	published      []Published
	consumers      map[string]chan amqp.Delivery
	consumerQueues map[string]string
	returns        chan amqp.Return
	closed         bool

	// QueueDepths is returned by QueueInspect
	QueueDepths map[string]int
	// Errors makes the named method fail, e.g. Errors["Publish"]
	Errors map[string]error
}

// NewFakeChannel returns an empty channel
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{
		queueArgs:      make(map[string]amqp.Table),
		consumers:      make(map[string]chan amqp.Delivery),
		consumerQueues: make(map[string]string),
		QueueDepths:    make(map[string]int),
		Errors:         make(map[string]error),
	}
}

func (c *FakeChannel) record(call string) error {
	c.calls = append(c.calls, call)
	method := call
	for i, r := range call {
		if r == ':' {
			method = call[:i]
			break
		}
	}
	return c.Errors[method]
}

func (c *FakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(fmt.Sprintf("ExchangeDeclare:%s:%s", name, kind))
}

func (c *FakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueArgs[name] = args
	return amqp.Queue{Name: name}, c.record("QueueDeclare:" + name)
}

func (c *FakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(fmt.Sprintf("QueueBind:%s:%s:%s", name, key, exchange))
}

func (c *FakeChannel) QueueInspect(name string) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.record("QueueInspect:" + name)
	return amqp.Queue{Name: name, Messages: c.QueueDepths[name]}, err
}

func (c *FakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(fmt.Sprintf("Qos:%d", prefetchCount))
}

func (c *FakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Consume:" + queue); err != nil {
		return nil, err
	}
	ch := make(chan amqp.Delivery, 16)
	c.consumers[consumer] = ch
	c.consumerQueues[consumer] = queue
	return ch, nil
}

func (c *FakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(fmt.Sprintf("Publish:%s:%s", exchange, key)); err != nil {
		return err
	}
	c.published = append(c.published, Published{Exchange: exchange, RoutingKey: key, Mandatory: mandatory, Msg: msg})
	return nil
}

func (c *FakeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.consumers[consumer]; ok {
		close(ch)
		delete(c.consumers, consumer)
	}
	return c.record("Cancel:" + consumer)
}

func (c *FakeChannel) NotifyReturn(ch chan amqp.Return) chan amqp.Return {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.returns = ch
	return ch
}

func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for tag, ch := range c.consumers {
		close(ch)
		delete(c.consumers, tag)
	}
	if c.returns != nil {
		close(c.returns)
	}
	return c.record("Close")
}

// Deliver pushes d to the consumer attached to queue
func (c *FakeChannel) Deliver(queue string, d amqp.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tag, q := range c.consumerQueues {
		if q != queue {
			continue
		}
		if ch, ok := c.consumers[tag]; ok {
			ch <- d
			return nil
		}
	}
	return fmt.Errorf("no consumer on %s", queue)
}

// Return simulates the broker returning an unroutable message
func (c *FakeChannel) Return(r amqp.Return) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.returns == nil || c.closed {
		return errors.New("no return listener")
	}
	c.returns <- r
	return nil
}

// Calls returns the recorded operations in order
func (c *FakeChannel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Published returns the captured publishes
func (c *FakeChannel) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Published, len(c.published))
	copy(out, c.published)
	return out
}

// QueueArgs returns the arguments a queue was declared with
func (c *FakeChannel) QueueArgs(name string) amqp.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueArgs[name]
}

// ConsumedQueues returns the queues with an active consumer
func (c *FakeChannel) ConsumedQueues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for tag, q := range c.consumerQueues {
		if _, ok := c.consumers[tag]; ok {
			out = append(out, q)
		}
	}
	return out
}

// IsClosed reports whether Close was called
func (c *FakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeConnection hands out FakeChannels
type FakeConnection struct {
	mu       sync.Mutex
	channels []*FakeChannel
	closed   bool

	// NewChannel builds the next channel; defaults to NewFakeChannel
	NewChannel func() *FakeChannel
	ChannelErr error
}

func (c *FakeConnection) Channel() (messaging.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ChannelErr != nil {
		return nil, c.ChannelErr
	}
	var ch *FakeChannel
	if c.NewChannel != nil {
		ch = c.NewChannel()
	} else {
		ch = NewFakeChannel()
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Channels returns every channel opened on the connection
func (c *FakeConnection) Channels() []*FakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

// IsClosed reports whether Close was called
func (c *FakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeFactory hands out FakeConnections
type FakeFactory struct {
	mu          sync.Mutex
	connections []*FakeConnection

	// Err makes Connect fail
	Err error
	// NewChannel is passed to every new connection
	NewChannel func() *FakeChannel
}

func (f *FakeFactory) Connect() (messaging.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	conn := &FakeConnection{NewChannel: f.NewChannel}
	f.connections = append(f.connections, conn)
	return conn, nil
}

// Connections returns every connection handed out
func (f *FakeFactory) Connections() []*FakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeConnection, len(f.connections))
	copy(out, f.connections)
	return out
}

// Channels returns every channel opened through the factory
func (f *FakeFactory) Channels() []*FakeChannel {
	var out []*FakeChannel
	for _, conn := range f.Connections() {
		out = append(out, conn.Channels()...)
	}
	return out
}

// Ack is one acknowledgement recorded by a FakeAcknowledger
type Ack struct {
	Tag     uint64
	Kind    string
	Requeue bool
}

// FakeAcknowledger records delivery acknowledgements
type FakeAcknowledger struct {
	mu   sync.Mutex
	acks []Ack
	seen chan struct{}
}

// NewFakeAcknowledger returns an empty acknowledger
func NewFakeAcknowledger() *FakeAcknowledger {
	return &FakeAcknowledger{seen: make(chan struct{}, 64)}
}

func (a *FakeAcknowledger) add(ack Ack) error {
	a.mu.Lock()
	a.acks = append(a.acks, ack)
	a.mu.Unlock()
	select {
	case a.seen <- struct{}{}:
	default:
	}
	return nil
}

func (a *FakeAcknowledger) Ack(tag uint64, multiple bool) error {
	return a.add(Ack{Tag: tag, Kind: "ack"})
}

func (a *FakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return a.add(Ack{Tag: tag, Kind: "nack", Requeue: requeue})
}

func (a *FakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.add(Ack{Tag: tag, Kind: "reject", Requeue: requeue})
}

// Wait blocks until n acknowledgements were recorded or timeout passes
func (a *FakeAcknowledger) Wait(n int, timeout time.Duration) []Ack {
	deadline := time.After(timeout)
	for {
		a.mu.Lock()
		count := len(a.acks)
		a.mu.Unlock()
		if count >= n {
			break
		}
		select {
		case <-a.seen:
		case <-deadline:
			return a.Acks()
		}
	}
	return a.Acks()
}

// Acks returns the recorded acknowledgements
func (a *FakeAcknowledger) Acks() []Ack {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Ack, len(a.acks))
	copy(out, a.acks)
	return out
}

// NewDelivery builds a delivery acknowledged through ack
func NewDelivery(ack *FakeAcknowledger, tag uint64, body []byte, correlationID string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger:  ack,
		DeliveryTag:   tag,
		Body:          body,
		CorrelationId: correlationID,
		ContentType:   messaging.ContentTypeJSON,
	}
}
