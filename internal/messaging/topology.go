package messaging

import (
	"fmt"

	amqp "github.com/streadway/amqp"
)

// TriggerAction is the client action a queue serves
type TriggerAction string

const (
	AddFund      TriggerAction = "AddFund"
	DownloadFund TriggerAction = "DownloadFund"
)

// SupportedActions lists every action the backend answers
var SupportedActions = []TriggerAction{AddFund, DownloadFund}

// IsSupported reports whether the action has a queue pair in the default topology
func (a TriggerAction) IsSupported() bool {
	return a == AddFund || a == DownloadFund
}

// QueueRole tells whether a queue carries requests, responses or dead letters
type QueueRole string

const (
	RoleProcessing QueueRole = "processing"
	RoleResponse   QueueRole = "response"
	RoleDeadLetter QueueRole = "deadletter"
)

const (
	ExchangeTopic  = amqp.ExchangeTopic
	ExchangeFanout = amqp.ExchangeFanout
	ExchangeDirect = amqp.ExchangeDirect

	// DeadLetterKey is the queue argument pointing at the dead-letter exchange
	DeadLetterKey = "x-dead-letter-exchange"

	ContentTypeJSON = "application/json"
)

// Queue names and binding keys of the default topology
const (
	AddFundRequestQueue          = "fundmanager.addfund.request"
	AddFundRequestBinding        = "fund.manager.addfund.request"
	AddFundResponseQueue         = "fundmanager.addfund.response"
	AddFundResponseBinding       = "fund.manager.addfund.response"
	DownloadFundsRequestQueue    = "fundmanager.downloadfunds.request"
	DownloadFundsRequestBinding  = "fund.manager.downloadfunds.request"
	DownloadFundsResponseQueue   = "fundmanager.downloadfunds.response"
	DownloadFundsResponseBinding = "fund.manager.downloadfunds.response"
)

// Queue describes a queue and how it is bound to its exchange
type Queue struct {
	Name       string
	Bindings   []string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Args       amqp.Table
	Role       QueueRole
	Action     TriggerAction
}

// Exchange describes an exchange and the queues bound to it.
// ConsumerTag is the only field assigned after construction.
type Exchange struct {
	Name        string
	Kind        string
	Durable     bool
	AutoDelete  bool
	Queues      []Queue
	ConsumerTag string
}

// Topology holds the names used to build the broker layout
type Topology struct {
	AppName string
}

// NewTopology returns the topology for an application prefix such as "ubs"
func NewTopology(appName string) Topology {
	if appName == "" {
		appName = "ubs"
	}
	return Topology{AppName: appName}
}

// ExchangeName is the topic exchange carrying requests and responses
func (t Topology) ExchangeName() string {
	return t.AppName + ".fund.manager"
}

// DeadLetterExchangeName is the fanout exchange receiving rejected messages
func (t Topology) DeadLetterExchangeName() string {
	return t.AppName + ".fund.manager.dlx"
}

// DeadLetterQueueName is the queue parked behind the dead-letter exchange
func (t Topology) DeadLetterQueueName() string {
	return t.AppName + ".fund.manager.dlq"
}

// DeadLetterBinding is the binding key of the dead-letter queue
func (t Topology) DeadLetterBinding() string {
	return t.AppName + ".fundmanager.deadletter"
}

// Default builds the request/response exchange with its four queues
func (t Topology) Default() *Exchange {
	args := func() amqp.Table {
		return amqp.Table{DeadLetterKey: t.DeadLetterExchangeName()}
	}

	return &Exchange{
		Name:    t.ExchangeName(),
		Kind:    ExchangeTopic,
		Durable: true,
		Queues: []Queue{
			{Name: AddFundRequestQueue, Bindings: []string{AddFundRequestBinding}, Durable: true, Args: args(), Role: RoleProcessing, Action: AddFund},
			{Name: AddFundResponseQueue, Bindings: []string{AddFundResponseBinding}, Durable: true, Args: args(), Role: RoleResponse, Action: AddFund},
			{Name: DownloadFundsRequestQueue, Bindings: []string{DownloadFundsRequestBinding}, Durable: true, Args: args(), Role: RoleProcessing, Action: DownloadFund},
			{Name: DownloadFundsResponseQueue, Bindings: []string{DownloadFundsResponseBinding}, Durable: true, Args: args(), Role: RoleResponse, Action: DownloadFund},
		},
	}
}

// DeadLetter builds the dead-letter exchange and its queue
func (t Topology) DeadLetter() *Exchange {
	return &Exchange{
		Name:    t.DeadLetterExchangeName(),
		Kind:    ExchangeFanout,
		Durable: true,
		Queues: []Queue{
			{Name: t.DeadLetterQueueName(), Bindings: []string{t.DeadLetterBinding()}, Durable: true, Role: RoleDeadLetter},
		},
	}
}

// FindQueue returns the queue serving action in the given role
func (e *Exchange) FindQueue(action TriggerAction, role QueueRole) (Queue, bool) {
	for _, q := range e.Queues {
		if q.Action == action && q.Role == role {
			return q, true
		}
	}
	return Queue{}, false
}

// ProcessingBinding returns the routing key requests for action are published with
func (e *Exchange) ProcessingBinding(action TriggerAction) (string, error) {
	return e.binding(action, RoleProcessing)
}

// ResponseBinding returns the routing key responses for action are published with
func (e *Exchange) ResponseBinding(action TriggerAction) (string, error) {
	return e.binding(action, RoleResponse)
}

func (e *Exchange) binding(action TriggerAction, role QueueRole) (string, error) {
	if !action.IsSupported() {
		return "", &UnsupportedActionError{Action: action}
	}
	q, ok := e.FindQueue(action, role)
	if !ok || len(q.Bindings) == 0 {
		return "", &UnsupportedActionError{Action: action, Reason: fmt.Sprintf("no %s queue bound on %s", role, e.Name)}
	}
	return q.Bindings[0], nil
}

// Declare declares the exchange, its queues and bindings on ch
func (e *Exchange) Declare(ch Channel) error {
	if err := ch.ExchangeDeclare(
		e.Name,       // name
		e.Kind,       // type
		e.Durable,    // durable
		e.AutoDelete, // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", e.Name, err)
	}

	for _, q := range e.Queues {
		if err := q.Declare(ch, e.Name); err != nil {
			return err
		}
	}
	return nil
}

// Declare declares the queue and binds every binding key to exchange
func (q Queue) Declare(ch Channel, exchange string) error {
	if _, err := ch.QueueDeclare(
		q.Name,       // name
		q.Durable,    // durable
		q.AutoDelete, // delete when unused
		q.Exclusive,  // exclusive
		false,        // no-wait
		q.Args,       // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
	}

	for _, key := range q.Bindings {
		if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s with %s: %w", q.Name, exchange, key, err)
		}
	}
	return nil
}
