package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"fund-manager/internal/concurrent"
	"fund-manager/internal/messaging"
	"fund-manager/internal/monitoring"
)

// State is the lifecycle position of a component
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrInvalidState is returned when Start or Stop is called mid-transition
var ErrInvalidState = errors.New("component is changing state")

// Listener is the lifecycle every listening component exposes to the host
type Listener interface {
	Action() messaging.TriggerAction
	State() State
	Start(ctx context.Context) error
	Stop() error
}

// Validator is implemented by requests that can check themselves before
// being processed
type Validator interface {
	Validate() error
}

// Response is what Process hands back: the payload and where to publish it
type Response[V any] struct {
	Payload      V
	RoutingKey   string
	ExchangeName string
}

// Processor performs the domain operation behind a component
type Processor[K, V any] interface {
	Process(ctx context.Context, request K) (*Response[V], error)
}

// Options tunes a component's worker pool
type Options struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// DefaultOptions keeps one request in flight per component
func DefaultOptions() Options {
	return Options{Workers: 1, QueueSize: 1, ProcessTimeout: 30 * time.Second}
}

// Component consumes the processing queue of one action, runs Process on a
// bounded worker pool and publishes the response. Each component owns its
// own connection and channel.
type Component[K, V any] struct {
	factory   messaging.ConnectionFactory
	action    messaging.TriggerAction
	exchanges []*messaging.Exchange
	processor Processor[K, V]
	options   Options
	pool      *concurrent.WorkerPool
	logger    *logrus.Entry
	metrics   *monitoring.Metrics

	mu          sync.Mutex
	state       State
	conn        messaging.Connection
	channel     messaging.Channel
	consumerTag string
	consuming   sync.WaitGroup
}

// NewComponent builds a stopped component for action bound to exchanges
func NewComponent[K, V any](
	factory messaging.ConnectionFactory,
	action messaging.TriggerAction,
	exchanges []*messaging.Exchange,
	processor Processor[K, V],
	options Options,
	logger *logrus.Entry,
	metrics *monitoring.Metrics,
) *Component[K, V] {
	if options.ProcessTimeout <= 0 {
		options.ProcessTimeout = DefaultOptions().ProcessTimeout
	}
	log := logger.WithFields(logrus.Fields{
		"component": "listener",
		"action":    string(action),
	})

	return &Component[K, V]{
		factory:   factory,
		action:    action,
		exchanges: exchanges,
		processor: processor,
		options:   options,
		pool:      concurrent.NewWorkerPool(string(action), options.Workers, options.QueueSize, log),
		logger:    log,
		metrics:   metrics,
	}
}

func (c *Component[K, V]) Action() messaging.TriggerAction {
	return c.action
}

func (c *Component[K, V]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ComposeResponse addresses payload to the response binding of the
// component's action on the first exchange that has one
func (c *Component[K, V]) ComposeResponse(payload V) (*Response[V], error) {
	var lastErr error = &messaging.UnsupportedActionError{Action: c.action, Reason: "no exchange bound"}
	for _, ex := range c.exchanges {
		key, err := ex.ResponseBinding(c.action)
		if err != nil {
			lastErr = err
			continue
		}
		return &Response[V]{Payload: payload, RoutingKey: key, ExchangeName: ex.Name}, nil
	}
	return nil, lastErr
}

// Start opens the component's channel, declares its exchanges and consumes
// the processing queue. Starting a running component does nothing.
func (c *Component[K, V]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRunning:
		return nil
	case StateStarting, StateStopping:
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, c.action, c.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.state = StateStarting

	if err := c.startLocked(); err != nil {
		c.releaseLocked()
		c.state = StateStopped
		return err
	}

	c.state = StateRunning
	c.metrics.ComponentStarted()
	c.logger.Info("✅ Listening component started")
	return nil
}

func (c *Component[K, V]) startLocked() error {
	queue, ok := c.processingQueue()
	if !ok {
		return &messaging.UnsupportedActionError{Action: c.action, Reason: "no processing queue bound"}
	}

	conn, err := c.factory.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect %s component: %w", c.action, err)
	}
	c.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.channel = ch

	if err := ch.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	for _, ex := range c.exchanges {
		if err := ex.Declare(ch); err != nil {
			return err
		}
	}

	if err := c.pool.Start(); err != nil {
		return err
	}

	c.consumerTag = queue.Name + "." + uuid.NewString()
	deliveries, err := ch.Consume(
		queue.Name,    // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		c.pool.Stop()
		return fmt.Errorf("failed to consume %s: %w", queue.Name, err)
	}

	c.consuming.Add(1)
	go c.consume(queue.Name, deliveries)
	return nil
}

func (c *Component[K, V]) processingQueue() (messaging.Queue, bool) {
	for _, ex := range c.exchanges {
		if q, ok := ex.FindQueue(c.action, messaging.RoleProcessing); ok {
			return q, true
		}
	}
	return messaging.Queue{}, false
}

// Stop cancels the consumer, lets in-flight tasks finish and closes the
// connection. Stopping a stopped component does nothing.
func (c *Component[K, V]) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateStopped:
		c.mu.Unlock()
		return nil
	case StateStarting, StateStopping:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, c.action, c.state)
	}
	c.state = StateStopping

	var cancelErr error
	if err := c.channel.Cancel(c.consumerTag, false); err != nil {
		cancelErr = fmt.Errorf("failed to cancel consumer %s: %w", c.consumerTag, err)
	}
	c.mu.Unlock()

	if cancelErr == nil {
		c.consuming.Wait()
	}
	c.pool.Stop()

	c.mu.Lock()
	err := errors.Join(cancelErr, c.releaseLocked())
	c.state = StateStopped
	c.mu.Unlock()

	if cancelErr != nil {
		// the channel is closed now so the consume loop ends on its own
		c.consuming.Wait()
	}

	c.metrics.ComponentStopped()
	c.logger.Info("🛑 Listening component stopped")
	return err
}

// releaseLocked closes the channel and connection; c.mu must be held
func (c *Component[K, V]) releaseLocked() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	c.channel = nil
	c.conn = nil
	c.consumerTag = ""
	return errors.Join(errs...)
}

func (c *Component[K, V]) consume(queue string, deliveries <-chan amqp.Delivery) {
	defer c.consuming.Done()
	c.logger.Debugf("🔄 Consuming requests from %s", queue)

	for d := range deliveries {
		c.dispatch(d)
	}
}

// dispatch screens a delivery and hands it to the worker pool. The delivery
// is acknowledged by the task, so the next one only arrives once it is done.
func (c *Component[K, V]) dispatch(d amqp.Delivery) {
	log := c.logger.WithField("correlation_id", d.CorrelationId)

	if d.CorrelationId == "" {
		err := &messaging.ProtocolError{Reason: "request without correlation id"}
		log.Warnf("⚠️ %v, rejecting", err)
		c.reject(d, log)
		return
	}

	request := messaging.Decode[K](d.Body)
	if v, ok := any(request).(Validator); ok {
		if err := v.Validate(); err != nil {
			log.Warnf("⚠️ Rejecting invalid request: %v", err)
			c.reject(d, log)
			return
		}
	}

	err := c.pool.Submit(context.Background(), func(ctx context.Context) {
		c.handle(ctx, d, request, log)
	})
	if err != nil {
		log.Errorf("Failed to schedule request (redelivered: %t): %v", d.Redelivered, err)
		c.nack(d, !d.Redelivered, log)
	}
}

func (c *Component[K, V]) handle(ctx context.Context, d amqp.Delivery, request K, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(ctx, c.options.ProcessTimeout)
	defer cancel()

	// a delivery left unsettled blocks the channel (prefetch 1)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("❌ Process panicked (redelivered: %t): %v", d.Redelivered, r)
			c.nack(d, !d.Redelivered, log)
		}
	}()

	start := time.Now()
	response, err := c.processor.Process(ctx, request)
	c.metrics.RecordProcess(string(c.action), time.Since(start))

	if err == nil && response != nil {
		err = c.publish(ctx, d, response)
	}
	if err != nil {
		log.Errorf("❌ Failed to process request (redelivered: %t): %v", d.Redelivered, err)
		c.nack(d, !d.Redelivered, log)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Errorf("Failed to ack request: %v", err)
		return
	}
	c.metrics.RecordDelivery(string(c.action), monitoring.OutcomeAck)
	log.Debug("📥 Request processed")
}

func (c *Component[K, V]) publish(ctx context.Context, d amqp.Delivery, response *Response[V]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := messaging.Encode(response.Payload)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		CorrelationId: d.CorrelationId,
		ContentType:   messaging.ContentTypeJSON,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Body:          body,
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return messaging.ErrNotStarted
	}

	err = ch.Publish(response.ExchangeName, response.RoutingKey, false, false, msg)
	c.metrics.RecordPublish(response.RoutingKey, err)
	if err != nil {
		return fmt.Errorf("failed to publish response to %s: %w", response.RoutingKey, err)
	}

	if d.ReplyTo != "" {
		err = ch.Publish("", d.ReplyTo, false, false, msg)
		c.metrics.RecordPublish(d.ReplyTo, err)
		if err != nil {
			return fmt.Errorf("failed to publish response to reply-to %s: %w", d.ReplyTo, err)
		}
	}
	return nil
}

func (c *Component[K, V]) reject(d amqp.Delivery, log *logrus.Entry) {
	if err := d.Reject(false); err != nil {
		log.Errorf("Failed to reject request: %v", err)
		return
	}
	c.metrics.RecordDelivery(string(c.action), monitoring.OutcomeReject)
}

func (c *Component[K, V]) nack(d amqp.Delivery, requeue bool, log *logrus.Entry) {
	if err := d.Nack(false, requeue); err != nil {
		log.Errorf("Failed to nack request: %v", err)
		return
	}
	c.metrics.RecordDelivery(string(c.action), monitoring.OutcomeNack)
}
