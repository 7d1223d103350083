package host_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund-manager/internal/host"
	"fund-manager/internal/listener"
	"fund-manager/internal/messaging"
	"fund-manager/internal/messaging/messagingtest"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventLog) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type fakeBootstrapper struct {
	log *eventLog
	err error
}

func (b *fakeBootstrapper) EnsureSchema(ctx context.Context) error {
	b.log.add("schema")
	return b.err
}

type fakeListener struct {
	action   messaging.TriggerAction
	log      *eventLog
	startErr error
	stopErr  error
	state    listener.State
	stops    int
}

func (l *fakeListener) Action() messaging.TriggerAction { return l.action }
func (l *fakeListener) State() listener.State           { return l.state }

func (l *fakeListener) Start(ctx context.Context) error {
	l.log.add("start:" + string(l.action))
	if l.startErr != nil {
		return l.startErr
	}
	l.state = listener.StateRunning
	return nil
}

func (l *fakeListener) Stop() error {
	l.log.add("stop:" + string(l.action))
	l.stops++
	l.state = listener.StateStopped
	return l.stopErr
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type fixture struct {
	host      *host.ComponentHost
	factory   *messagingtest.FakeFactory
	log       *eventLog
	listeners []*fakeListener
	bound     []*messaging.Exchange
}

func newFixture(bootErr error, listeners ...*fakeListener) *fixture {
	f := &fixture{factory: &messagingtest.FakeFactory{}, log: &eventLog{}, listeners: listeners}
	for _, l := range listeners {
		l.log = f.log
	}
	build := func(exchanges []*messaging.Exchange) []listener.Listener {
		f.bound = exchanges
		out := make([]listener.Listener, len(listeners))
		for i, l := range listeners {
			out[i] = l
		}
		return out
	}
	f.host = host.NewComponentHost(f.factory, &fakeBootstrapper{log: f.log, err: bootErr},
		messaging.NewTopology("ubs"), build, testLogger())
	return f
}

func indexOf(items []string, item string) int {
	for i, v := range items {
		if v == item {
			return i
		}
	}
	return -1
}

func TestHostStartOrder(t *testing.T) {
	f := newFixture(nil,
		&fakeListener{action: messaging.AddFund},
		&fakeListener{action: messaging.DownloadFund},
	)

	require.NoError(t, f.host.Start(context.Background()))

	assert.Equal(t, []string{"schema", "start:AddFund", "start:DownloadFund"}, f.log.all())

	ch := f.factory.Channels()[0]
	calls := ch.Calls()
	dlx := indexOf(calls, "ExchangeDeclare:ubs.fund.manager.dlx:fanout")
	def := indexOf(calls, "ExchangeDeclare:ubs.fund.manager:topic")
	require.NotEqual(t, -1, dlx)
	require.NotEqual(t, -1, def)
	assert.Less(t, dlx, def, "dead-letter exchange is declared first")
	assert.Contains(t, calls, "QueueBind:ubs.fund.manager.dlq:ubs.fundmanager.deadletter:ubs.fund.manager.dlx")

	for _, q := range []string{messaging.AddFundRequestQueue, messaging.DownloadFundsResponseQueue} {
		assert.Equal(t, "ubs.fund.manager.dlx", ch.QueueArgs(q)[messaging.DeadLetterKey], q)
	}
	assert.True(t, ch.IsClosed(), "the declaration channel is released")

	require.Len(t, f.bound, 1)
	assert.Equal(t, "ubs.fund.manager", f.bound[0].Name)
	assert.True(t, f.host.Running())
	assert.Equal(t, map[string]string{"AddFund": "running", "DownloadFund": "running"}, f.host.Status())
}

func TestHostSchemaFailureStopsStartup(t *testing.T) {
	f := newFixture(errors.New("mongo down"), &fakeListener{action: messaging.AddFund})

	err := f.host.Start(context.Background())
	assert.ErrorContains(t, err, "mongo down")
	assert.Empty(t, f.factory.Connections())
	assert.Equal(t, []string{"schema"}, f.log.all())
}

func TestHostPartialStartCanBeStopped(t *testing.T) {
	add := &fakeListener{action: messaging.AddFund}
	download := &fakeListener{action: messaging.DownloadFund, startErr: errors.New("queue locked")}
	f := newFixture(nil, add, download)

	err := f.host.Start(context.Background())
	assert.ErrorContains(t, err, "queue locked")
	assert.False(t, f.host.Running())

	require.NoError(t, f.host.Stop())
	assert.Equal(t, 1, add.stops)
	assert.Equal(t, 1, download.stops)
}

func TestHostStopJoinsErrors(t *testing.T) {
	add := &fakeListener{action: messaging.AddFund, stopErr: errors.New("cancel failed")}
	download := &fakeListener{action: messaging.DownloadFund}
	f := newFixture(nil, add, download)
	require.NoError(t, f.host.Start(context.Background()))

	err := f.host.Stop()
	assert.ErrorContains(t, err, "cancel failed")
	assert.Equal(t, 1, download.stops, "a failing component does not prevent the others from stopping")
}

func TestHostCloseIsIdempotent(t *testing.T) {
	add := &fakeListener{action: messaging.AddFund}
	f := newFixture(nil, add)
	require.NoError(t, f.host.Start(context.Background()))

	require.NoError(t, f.host.Close())
	require.NoError(t, f.host.Close())

	assert.Equal(t, 1, add.stops)
	assert.True(t, f.factory.Connections()[0].IsClosed())
}

func TestHostStopBeforeStart(t *testing.T) {
	f := newFixture(nil, &fakeListener{action: messaging.AddFund})
	assert.NoError(t, f.host.Stop())
	assert.NoError(t, f.host.Close())
}
