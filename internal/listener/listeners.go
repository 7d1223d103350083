package listener

import (
	"github.com/sirupsen/logrus"

	"fund-manager/internal/messaging"
	"fund-manager/internal/monitoring"
	"fund-manager/internal/repositories"
)

// NewDefaultListeners builds one component per supported action, all bound
// to the same exchanges and backed by the same repository
func NewDefaultListeners(
	factory messaging.ConnectionFactory,
	exchanges []*messaging.Exchange,
	repo repositories.FundRepository,
	options Options,
	logger *logrus.Entry,
	metrics *monitoring.Metrics,
) []Listener {
	return []Listener{
		NewAddFundComponent(factory, exchanges, repo, options, logger, metrics),
		NewDownloadFundsComponent(factory, exchanges, repo, options, logger, metrics),
	}
}
