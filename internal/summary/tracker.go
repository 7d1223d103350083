package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fund-manager/internal/calculator"
	"fund-manager/internal/messaging"
	"fund-manager/internal/models"
	"fund-manager/internal/monitoring"
)

const (
	// DefaultApplyTimeout bounds the persistence done for one notification
	DefaultApplyTimeout = 10 * time.Second

	// DefaultMaxFunds is how many of the latest funds Funds reports
	DefaultMaxFunds = models.MaxDatasetSize
)

// ErrUnsupportedStock is returned when no calculator accepts a stock
var ErrUnsupportedStock = errors.New("no calculator accepts stock")

// Tracker owns the portfolio summary. Every change goes through the mutex so
// updates are folded, persisted and published in arrival order.
type Tracker struct {
	mu          sync.Mutex
	current     models.FundSummaryData
	funds       []models.Fund
	store       Store
	calculators []calculator.StockCalculator
	timeout     time.Duration
	maxFunds    int
	logger      *logrus.Entry
	metrics     *monitoring.Metrics
	now         func() time.Time
}

var _ messaging.Subscriber = (*Tracker)(nil)

// NewTracker creates a tracker starting from an empty summary. store may be
// nil, in which case the summary only lives in memory.
func NewTracker(store Store, logger *logrus.Entry, metrics *monitoring.Metrics) *Tracker {
	return &Tracker{
		store:       store,
		calculators: calculator.DefaultCalculators(),
		timeout:     DefaultApplyTimeout,
		maxFunds:    DefaultMaxFunds,
		logger:      logger.WithField("component", "summary-tracker"),
		metrics:     metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads the last persisted summary
func (t *Tracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	summary, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load summary: %w", err)
	}

	t.mu.Lock()
	t.current = summary
	t.mu.Unlock()
	return nil
}

// Current returns a copy of the summary
func (t *Tracker) Current() models.FundSummaryData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Funds returns the latest funds seen since the last rebuild, with the weight
// each had when it was folded in
func (t *Tracker) Funds() []models.Fund {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Fund, len(t.funds))
	copy(out, t.funds)
	return out
}

// Apply folds one stock into the summary and persists the result. The
// in-memory state is updated even when persistence fails.
func (t *Tracker) Apply(ctx context.Context, stock models.Stock) (models.FundSummaryData, error) {
	return t.applyFund(ctx, models.Fund{StockInfo: stock})
}

func (t *Tracker) applyFund(ctx context.Context, fund models.Fund) (models.FundSummaryData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, stock, ok := calculator.Fold(t.current, fund.StockInfo, t.calculators...)
	if !ok {
		return t.current, fmt.Errorf("%w: type %q", ErrUnsupportedStock, fund.StockInfo.Type)
	}
	next.UpdatedAt = t.now()
	fund.StockInfo = *stock

	t.current = next
	t.funds = t.latest(append(t.funds, fund))
	t.metrics.RecordSummaryFold(string(stock.Type))

	return next, t.persistLocked(ctx, next)
}

// Rebuild recomputes the summary from scratch out of funds. Funds without a
// market value are valued first; unsupported ones are skipped. The lock is
// held throughout so a fund applied meanwhile is folded on top of the result.
func (t *Tracker) Rebuild(ctx context.Context, funds []models.Fund) (models.FundSummaryData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		next  models.FundSummaryData
		kept  = make([]models.Fund, 0, len(funds))
		stock *models.Stock
		ok    bool
	)

	for _, fund := range funds {
		info := fund.StockInfo
		if info.ValueInfo.MarketValue.IsZero() {
			valued, err := calculator.Value(info)
			if err != nil {
				t.logger.WithField("fund", fund.Name).Warnf("Skipping fund: %v", err)
				continue
			}
			info = valued
		}

		next, stock, ok = calculator.Fold(next, info, t.calculators...)
		if !ok {
			t.logger.WithField("fund", fund.Name).Warnf("Skipping fund of unsupported type %q", info.Type)
			continue
		}
		fund.StockInfo = *stock
		kept = append(kept, fund)
		t.metrics.RecordSummaryFold(string(stock.Type))
	}

	next.UpdatedAt = t.now()
	t.current = next
	t.funds = t.latest(kept)

	return next, t.persistLocked(ctx, next)
}

// latest keeps the last maxFunds entries in a fresh slice
func (t *Tracker) latest(funds []models.Fund) []models.Fund {
	if t.maxFunds <= 0 || len(funds) <= t.maxFunds {
		return funds
	}
	out := make([]models.Fund, t.maxFunds)
	copy(out, funds[len(funds)-t.maxFunds:])
	return out
}

func (t *Tracker) persistLocked(ctx context.Context, summary models.FundSummaryData) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Save(ctx, summary); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	if err := t.store.Publish(ctx, summary); err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}
	return nil
}

// NewFundAdded folds a fund returned by the backend
func (t *Tracker) NewFundAdded(fund models.Fund) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	summary, err := t.applyFund(ctx, fund)
	if err != nil {
		t.logger.WithField("fund", fund.Name).Errorf("Failed to apply fund: %v", err)
		return
	}
	t.logger.WithFields(logrus.Fields{
		"fund":        fund.Name,
		"total_value": summary.All.TotalMarketValue.String(),
	}).Debug("Fund summary updated")
}

// FundsDownloaded replaces the summary with one built from funds
func (t *Tracker) FundsDownloaded(funds []models.Fund) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if _, err := t.Rebuild(ctx, funds); err != nil {
		t.logger.Errorf("Failed to rebuild summary: %v", err)
		return
	}
	t.logger.WithField("funds", len(funds)).Info("Fund summary rebuilt")
}

// Undelivered logs requests the broker could not route
func (t *Tracker) Undelivered(msg messaging.UndeliveredMessage) {
	t.logger.WithFields(logrus.Fields{
		"routing_key": msg.RoutingKey,
		"reply_code":  msg.ReplyCode,
		"reply_text":  msg.ReplyText,
	}).Warn("Request was not delivered")
}
