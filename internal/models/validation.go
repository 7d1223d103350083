package models

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// decimals are compared as floats so gt/lte tags work on money fields
		validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.InexactFloat64()
			}
			return nil
		}, decimal.Decimal{})
	})
	return validate
}

// Validate checks an incoming stock before it is persisted
func (s Stock) Validate() error {
	if err := validatorInstance().Struct(s); err != nil {
		return fmt.Errorf("invalid stock: %w", err)
	}
	return nil
}

// Validate checks a download request
func (r DownloadFundsRequest) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		return fmt.Errorf("invalid download request: %w", err)
	}
	return nil
}
