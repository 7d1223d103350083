package listener

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"fund-manager/internal/messaging"
	"fund-manager/internal/models"
	"fund-manager/internal/monitoring"
	"fund-manager/internal/repositories"
)

// AddFundComponent stores every stock it receives as a new fund and answers
// with the stored fund
type AddFundComponent struct {
	*Component[models.Stock, messaging.FundMessage]
	repo repositories.FundRepository
}

func NewAddFundComponent(
	factory messaging.ConnectionFactory,
	exchanges []*messaging.Exchange,
	repo repositories.FundRepository,
	options Options,
	logger *logrus.Entry,
	metrics *monitoring.Metrics,
) *AddFundComponent {
	c := &AddFundComponent{repo: repo}
	c.Component = NewComponent[models.Stock, messaging.FundMessage](factory, messaging.AddFund, exchanges, c, options, logger, metrics)
	return c
}

func (c *AddFundComponent) Process(ctx context.Context, stock models.Stock) (*Response[messaging.FundMessage], error) {
	fund, err := c.repo.CreateItem(ctx, &models.Fund{StockInfo: stock})
	if err != nil {
		return nil, fmt.Errorf("failed to add fund: %w", err)
	}

	msg, err := messaging.NewFundMessage(messaging.AddFund, fund)
	if err != nil {
		return nil, err
	}
	return c.ComposeResponse(msg)
}
