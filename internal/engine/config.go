package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const DefaultLotSize int64 = 100

type SizingMethod string

const (
	SizingAllIn         SizingMethod = "all_in"
	SizingFixedFraction SizingMethod = "fixed_fraction"
	SizingFixedCash     SizingMethod = "fixed_cash"
)

var ErrInvalidConfig = errors.New("invalid run configuration")

// SizingConfig selects the position sizing method. Param is the fraction for
// fixed_fraction and the cash amount for fixed_cash; all_in ignores it.
type SizingConfig struct {
	Method SizingMethod
	Param  decimal.Decimal
}

// CostConfig holds the per-fill cost schedule. Rates are fractions of notional.
type CostConfig struct {
	CommissionRate decimal.Decimal
	MinCommission  decimal.Decimal
	StampDutyRate  decimal.Decimal
	SlippageRate   decimal.Decimal
}

// RunConfig is the configuration of one backtest run.
type RunConfig struct {
	InitialCash    decimal.Decimal
	LotSize        int64
	MinCashReserve decimal.Decimal
	Costs          CostConfig
	Sizing         SizingConfig
}

// NewRunConfig returns a config with the given initial cash, the default
// lot size, all_in sizing and no costs.
func NewRunConfig(initialCash decimal.Decimal) RunConfig {
	return RunConfig{
		InitialCash: initialCash,
		LotSize:     DefaultLotSize,
		Sizing:      SizingConfig{Method: SizingAllIn},
	}
}

func (c RunConfig) Validate() error {
	if !c.InitialCash.IsPositive() {
		return fmt.Errorf("%w: initial cash must be positive, got %s", ErrInvalidConfig, c.InitialCash)
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("%w: lot size must be positive, got %d", ErrInvalidConfig, c.LotSize)
	}
	if c.MinCashReserve.IsNegative() {
		return fmt.Errorf("%w: minimum cash reserve must not be negative, got %s", ErrInvalidConfig, c.MinCashReserve)
	}
	for _, r := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"commission rate", c.Costs.CommissionRate},
		{"minimum commission", c.Costs.MinCommission},
		{"stamp duty rate", c.Costs.StampDutyRate},
		{"slippage rate", c.Costs.SlippageRate},
	} {
		if r.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, r.name, r.value)
		}
	}
	if c.Costs.SlippageRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: slippage rate must be below 1, got %s", ErrInvalidConfig, c.Costs.SlippageRate)
	}

	switch c.Sizing.Method {
	case SizingAllIn:
	case SizingFixedFraction:
		if !c.Sizing.Param.IsPositive() || c.Sizing.Param.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: fixed_fraction needs a fraction in (0, 1], got %s", ErrInvalidConfig, c.Sizing.Param)
		}
	case SizingFixedCash:
		if !c.Sizing.Param.IsPositive() {
			return fmt.Errorf("%w: fixed_cash needs a positive amount, got %s", ErrInvalidConfig, c.Sizing.Param)
		}
	default:
		return fmt.Errorf("%w: unknown sizing method %q", ErrInvalidConfig, c.Sizing.Method)
	}
	return nil
}
