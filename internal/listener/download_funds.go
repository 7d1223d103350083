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

// DownloadFundsComponent answers with up to the requested number of stored
// funds
type DownloadFundsComponent struct {
	*Component[models.DownloadFundsRequest, messaging.FundMessage]
	repo repositories.FundRepository
}

func NewDownloadFundsComponent(
	factory messaging.ConnectionFactory,
	exchanges []*messaging.Exchange,
	repo repositories.FundRepository,
	options Options,
	logger *logrus.Entry,
	metrics *monitoring.Metrics,
) *DownloadFundsComponent {
	c := &DownloadFundsComponent{repo: repo}
	c.Component = NewComponent[models.DownloadFundsRequest, messaging.FundMessage](factory, messaging.DownloadFund, exchanges, c, options, logger, metrics)
	return c
}

func (c *DownloadFundsComponent) Process(ctx context.Context, request models.DownloadFundsRequest) (*Response[messaging.FundMessage], error) {
	funds, err := c.repo.GetAll(ctx, request.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to load funds: %w", err)
	}

	msg, err := messaging.NewFundMessage(messaging.DownloadFund, funds)
	if err != nil {
		return nil, err
	}
	return c.ComposeResponse(msg)
}
