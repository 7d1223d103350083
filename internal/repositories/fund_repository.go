package repositories

import (
	"context"
	"errors"

	"fund-manager/internal/models"
)

// ErrFundNotFound is returned when no fund has the requested id
var ErrFundNotFound = errors.New("fund not found")

// FundRepository stores funds and hands them back valued and named
type FundRepository interface {
	// CreateItem stores a fund and returns it as read back from the store
	CreateItem(ctx context.Context, fund *models.Fund) (*models.Fund, error)

	// GetItem retrieves a fund by id
	GetItem(ctx context.Context, id string) (*models.Fund, error)

	// GetAll returns at most max funds, equities first then bonds
	GetAll(ctx context.Context, max int) ([]models.Fund, error)

	// UpdateItem replaces the stock of an existing fund
	UpdateItem(ctx context.Context, id string, fund *models.Fund) (*models.Fund, error)

	// DeleteItem removes a fund by id
	DeleteItem(ctx context.Context, id string) error
}
