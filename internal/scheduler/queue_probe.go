package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"fund-manager/internal/messaging"
	"fund-manager/internal/monitoring"
)

// QueueProbeJob is the name the probe is scheduled under
const QueueProbeJob = "queue-depth-probe"

// QueueProbe records the depth of the processing and dead-letter queues. It
// keeps one connection between runs and reconnects after a failure.
type QueueProbe struct {
	factory messaging.ConnectionFactory
	queues  []string
	metrics *monitoring.Metrics
	logger  *logrus.Entry

	mu      sync.Mutex
	conn    messaging.Connection
	channel messaging.Channel
}

// NewQueueProbe watches every processing and dead-letter queue of exchanges
func NewQueueProbe(factory messaging.ConnectionFactory, exchanges []*messaging.Exchange, metrics *monitoring.Metrics, logger *logrus.Entry) *QueueProbe {
	var queues []string
	for _, exchange := range exchanges {
		for _, q := range exchange.Queues {
			if q.Role == messaging.RoleProcessing || q.Role == messaging.RoleDeadLetter {
				queues = append(queues, q.Name)
			}
		}
	}

	return &QueueProbe{
		factory: factory,
		queues:  queues,
		metrics: metrics,
		logger:  logger.WithField("job", QueueProbeJob),
	}
}

// Queues returns the names of the probed queues
func (p *QueueProbe) Queues() []string {
	return p.queues
}

// Probe inspects every queue and returns the ready message counts
func (p *QueueProbe) Probe() (map[string]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.openLocked(); err != nil {
		return nil, err
	}

	depths := make(map[string]int, len(p.queues))
	for _, name := range p.queues {
		q, err := p.channel.QueueInspect(name)
		if err != nil {
			// a failed inspect closes the channel on the broker side
			p.releaseLocked()
			return depths, fmt.Errorf("failed to inspect queue %s: %w", name, err)
		}
		depths[name] = q.Messages
		p.metrics.SetQueueDepth(name, q.Messages)
	}
	return depths, nil
}

// Run is the cron entry point
func (p *QueueProbe) Run() {
	depths, err := p.Probe()
	if err != nil {
		p.logger.Warnf("Queue probe failed: %v", err)
		return
	}
	p.logger.WithField("depths", depths).Debug("Queue depths recorded")
}

// Close releases the probe's connection
func (p *QueueProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked()
}

func (p *QueueProbe) openLocked() error {
	if p.channel != nil {
		return nil
	}

	conn, err := p.factory.Connect()
	if err != nil {
		return fmt.Errorf("queue probe connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("queue probe channel: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *QueueProbe) releaseLocked() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
		p.channel = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
