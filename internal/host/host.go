package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"fund-manager/internal/listener"
	"fund-manager/internal/messaging"
)

// Bootstrapper prepares the backing store before any request is consumed
type Bootstrapper interface {
	EnsureSchema(ctx context.Context) error
}

// ListenerFactory builds the listening components bound to exchanges
type ListenerFactory func(exchanges []*messaging.Exchange) []listener.Listener

// ComponentHost owns the dead-letter and default topology plus every
// listening component of the process and drives their lifecycle.
type ComponentHost struct {
	factory      messaging.ConnectionFactory
	bootstrapper Bootstrapper
	deadLetter   *messaging.Exchange
	defaults     *messaging.Exchange
	build        ListenerFactory
	logger       *logrus.Entry

	mu        sync.Mutex
	conn      messaging.Connection
	listeners []listener.Listener
	closeOnce sync.Once
	closeErr  error
}

func NewComponentHost(
	factory messaging.ConnectionFactory,
	bootstrapper Bootstrapper,
	topology messaging.Topology,
	build ListenerFactory,
	logger *logrus.Entry,
) *ComponentHost {
	return &ComponentHost{
		factory:      factory,
		bootstrapper: bootstrapper,
		deadLetter:   topology.DeadLetter(),
		defaults:     topology.Default(),
		build:        build,
		logger:       logger.WithField("component", "host"),
	}
}

// Exchanges returns the exchanges components are bound to
func (h *ComponentHost) Exchanges() []*messaging.Exchange {
	return []*messaging.Exchange{h.defaults}
}

// Start ensures the schema, declares the dead-letter exchange before the
// default one, then starts every component. A failure leaves whatever was
// started running; call Stop to release it.
func (h *ComponentHost) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bootstrapper != nil {
		if err := h.bootstrapper.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	if err := h.declareTopologyLocked(); err != nil {
		return err
	}

	if h.listeners == nil {
		h.listeners = h.build(h.Exchanges())
	}

	for _, l := range h.listeners {
		if err := l.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s component: %w", l.Action(), err)
		}
		h.logger.Infof("✅ %s component running", l.Action())
	}
	return nil
}

func (h *ComponentHost) declareTopologyLocked() error {
	if h.conn == nil {
		conn, err := h.factory.Connect()
		if err != nil {
			return fmt.Errorf("failed to connect host: %w", err)
		}
		h.conn = conn
	}

	ch, err := h.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open topology channel: %w", err)
	}
	defer ch.Close()

	for _, ex := range []*messaging.Exchange{h.deadLetter, h.defaults} {
		if err := ex.Declare(ch); err != nil {
			return err
		}
		h.logger.Debugf("Declared exchange %s with %d queues", ex.Name, len(ex.Queues))
	}
	return nil
}

// Stop stops every component that was built, continuing past failures.
// The returned error joins every component's error.
func (h *ComponentHost) Stop() error {
	h.mu.Lock()
	listeners := h.listeners
	h.mu.Unlock()

	var errs []error
	for _, l := range listeners {
		if err := l.Stop(); err != nil {
			h.logger.Errorf("Failed to stop %s component: %v", l.Action(), err)
			errs = append(errs, fmt.Errorf("%s: %w", l.Action(), err))
		}
	}
	return errors.Join(errs...)
}

// Close stops the components and releases the topology connection. Only the
// first call does anything.
func (h *ComponentHost) Close() error {
	h.closeOnce.Do(func() {
		err := h.Stop()

		h.mu.Lock()
		if h.conn != nil {
			if cerr := h.conn.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("failed to close host connection: %w", cerr))
			}
			h.conn = nil
		}
		h.mu.Unlock()

		h.closeErr = err
		h.logger.Info("🛑 Component host closed")
	})
	return h.closeErr
}

// Status reports the state of every component by action
func (h *ComponentHost) Status() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := make(map[string]string, len(h.listeners))
	for _, l := range h.listeners {
		status[string(l.Action())] = l.State().String()
	}
	return status
}

// Running reports whether every component is running
func (h *ComponentHost) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.listeners) == 0 {
		return false
	}
	for _, l := range h.listeners {
		if l.State() != listener.StateRunning {
			return false
		}
	}
	return true
}
