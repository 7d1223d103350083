package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"fund-manager/internal/models"
	"fund-manager/internal/monitoring"
)

// Subscriber receives the notifications raised by the Client
type Subscriber interface {
	NewFundAdded(fund models.Fund)
	FundsDownloaded(funds []models.Fund)
	Undelivered(msg UndeliveredMessage)
}

// UndeliveredMessage is a publish the broker could not route
type UndeliveredMessage struct {
	ReplyCode     uint16                 `json:"replyCode"`
	ReplyText     string                 `json:"replyText"`
	Exchange      string                 `json:"exchange"`
	RoutingKey    string                 `json:"routingKey"`
	CorrelationID string                 `json:"correlationId"`
	Body          map[string]interface{} `json:"body"`
}

// Client publishes requests and consumes the response queues over a single
// connection and channel.
type Client struct {
	factory       ConnectionFactory
	defaults      *Exchange
	correlationID string
	logger        *logrus.Entry
	metrics       *monitoring.Metrics

	mu           sync.Mutex
	conn         Connection
	channel      Channel
	started      bool
	exchanges    []*Exchange
	consumerTags []string
	subscribers  []Subscriber
	wg           sync.WaitGroup
}

// NewClient creates a client bound to the default exchange. Start must be
// called before publishing.
func NewClient(factory ConnectionFactory, defaults *Exchange, logger *logrus.Entry, metrics *monitoring.Metrics) *Client {
	return &Client{
		factory:       factory,
		defaults:      defaults,
		correlationID: uuid.NewString(),
		logger:        logger.WithField("component", "messaging-client"),
		metrics:       metrics,
		exchanges:     []*Exchange{defaults},
	}
}

// CorrelationID is the id stamped on every request this process sends
func (c *Client) CorrelationID() string {
	return c.correlationID
}

// Subscribe registers s for every notification raised after this call
func (c *Client) Subscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, s)
}

// Start connects, declares the registered exchanges and consumes their
// response queues. Calling Start on a started client does nothing.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := c.factory.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect messaging client: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	returns := ch.NotifyReturn(make(chan amqp.Return, 16))
	c.conn = conn
	c.channel = ch

	c.wg.Add(1)
	go c.watchReturns(returns)

	for _, ex := range c.exchanges {
		if err := c.consumeLocked(ex); err != nil {
			c.closeLocked()
			return err
		}
	}

	c.started = true
	c.logger.Infof("✅ Messaging client started (correlation_id: %s)", c.correlationID)
	return nil
}

// Stop cancels every consumer and closes the connection. Safe to call more
// than once.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	err := c.closeLocked()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("🛑 Messaging client stopped")
	return err
}

// closeLocked releases the channel and connection; c.mu must be held
func (c *Client) closeLocked() error {
	var firstErr error
	if c.channel != nil {
		for _, tag := range c.consumerTags {
			if err := c.channel.Cancel(tag, false); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to cancel consumer %s: %w", tag, err)
			}
		}
		if err := c.channel.Close(); err != nil {
			c.logger.Warnf("Error closing channel: %v", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection: %w", err)
		}
	}
	c.consumerTags = nil
	c.channel = nil
	c.conn = nil
	return firstErr
}

// AddExchangeBindings registers another exchange. On a started client it is
// declared and consumed immediately.
func (c *Client) AddExchangeBindings(ctx context.Context, ex *Exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.exchanges = append(c.exchanges, ex)
	if !c.started {
		return nil
	}
	return c.consumeLocked(ex)
}

// consumeLocked declares ex and starts one consumer per response queue
func (c *Client) consumeLocked(ex *Exchange) error {
	if err := ex.Declare(c.channel); err != nil {
		return err
	}

	if ex.ConsumerTag == "" {
		ex.ConsumerTag = newConsumerTag("fundclient")
	}

	for _, q := range ex.Queues {
		if q.Role != RoleResponse {
			continue
		}

		tag := ex.ConsumerTag + "." + q.Name
		deliveries, err := c.channel.Consume(
			q.Name, // queue
			tag,    // consumer tag
			false,  // auto-ack
			false,  // exclusive
			false,  // no-local
			false,  // no-wait
			nil,    // args
		)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", q.Name, err)
		}
		c.consumerTags = append(c.consumerTags, tag)

		c.wg.Add(1)
		go c.consume(q.Name, deliveries)
	}
	return nil
}

func (c *Client) consume(queue string, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	c.logger.Debugf("🔄 Consuming responses from %s", queue)
	for d := range deliveries {
		c.handleDelivery(d)
	}
}

func (c *Client) handleDelivery(d amqp.Delivery) {
	msg := Decode[FundMessage](d.Body)
	log := c.logger.WithFields(logrus.Fields{
		"correlation_id": d.CorrelationId,
		"action":         msg.Action,
	})

	switch msg.Action {
	case AddFund:
		fund, err := msg.AddedFund()
		if err != nil {
			log.Errorf("Failed to decode added fund, sending to DLQ: %v", err)
			rejectResponse(d, log)
			return
		}
		if err := d.Ack(false); err != nil {
			log.Errorf("Failed to ack response: %v", err)
			return
		}
		log.Debugf("📨 Fund added: %s", fund.ID)
		for _, s := range c.snapshotSubscribers() {
			s.NewFundAdded(fund)
		}

	case DownloadFund:
		funds, err := msg.DownloadedFunds()
		if err != nil {
			log.Errorf("Failed to decode downloaded funds, sending to DLQ: %v", err)
			rejectResponse(d, log)
			return
		}
		if err := d.Ack(false); err != nil {
			log.Errorf("Failed to ack response: %v", err)
			return
		}
		log.Debugf("📨 Downloaded %d funds", len(funds))
		for _, s := range c.snapshotSubscribers() {
			s.FundsDownloaded(funds)
		}

	default:
		log.Warn("Response with unknown action, sending to DLQ")
		rejectResponse(d, log)
	}
}

func rejectResponse(d amqp.Delivery, log *logrus.Entry) {
	if err := d.Reject(false); err != nil {
		log.Errorf("Failed to reject response: %v", err)
	}
}

func (c *Client) watchReturns(returns <-chan amqp.Return) {
	defer c.wg.Done()
	for r := range returns {
		msg := UndeliveredMessage{
			ReplyCode:     r.ReplyCode,
			ReplyText:     r.ReplyText,
			Exchange:      r.Exchange,
			RoutingKey:    r.RoutingKey,
			CorrelationID: r.CorrelationId,
			Body:          Decode[map[string]interface{}](r.Body),
		}
		c.metrics.RecordUndelivered(r.RoutingKey)
		c.logger.Warnf("⚠️ Message returned by broker (routing_key: %s, reply: %d %s)", r.RoutingKey, r.ReplyCode, r.ReplyText)
		for _, s := range c.snapshotSubscribers() {
			s.Undelivered(msg)
		}
	}
}

func (c *Client) snapshotSubscribers() []Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Subscriber, len(c.subscribers))
	copy(out, c.subscribers)
	return out
}

// Publish sends payload as a request for action to its processing queue
func (c *Client) Publish(ctx context.Context, payload interface{}, action TriggerAction) error {
	routingKey, err := c.defaults.ProcessingBinding(action)
	if err != nil {
		return err
	}
	return c.PublishTo(ctx, c.defaults.Name, routingKey, payload, nil)
}

// PublishTo encodes payload and publishes it on exchange with routingKey.
// Missing properties default to the client's correlation id and JSON content.
func (c *Client) PublishTo(ctx context.Context, exchange, routingKey string, payload interface{}, props *amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Encode(payload)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{}
	if props != nil {
		msg = *props
	}
	if msg.CorrelationId == "" {
		msg.CorrelationId = c.correlationID
	}
	if msg.ContentType == "" {
		msg.ContentType = ContentTypeJSON
	}
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	msg.Timestamp = time.Now()
	msg.Body = body

	c.mu.Lock()
	ch := c.channel
	if ch == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	err = ch.Publish(
		exchange,   // exchange
		routingKey, // routing key
		true,       // mandatory
		false,      // immediate
		msg,
	)
	c.mu.Unlock()

	c.metrics.RecordPublish(routingKey, err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}

	c.logger.Debugf("📤 Published message (correlation_id: %s, routing_key: %s)", msg.CorrelationId, routingKey)
	return nil
}
