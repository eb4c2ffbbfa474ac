package accounting

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	// balanceTolerance is the largest debit/credit difference accepted on an entry.
	balanceTolerance = decimal.New(1, -2)
	// lotEpsilon is the quantity under which a lot is considered exhausted.
	lotEpsilon = decimal.New(1, -8)
	// adjustThreshold is the smallest adjustment worth posting.
	adjustThreshold = decimal.New(1, -2)
)

// D is a convenient factory for decimal.Decimal.
func D[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	default:
		panic("unsupported type")
	}
}

// fraction returns the number of minor unit digits of a currency, 2 when unknown.
func fraction(cur string) int32 {
	if c := money.GetCurrency(cur); c != nil {
		return int32(c.Fraction)
	}
	return 2
}

// roundTo rounds an amount to the minor unit of cur.
func roundTo(v decimal.Decimal, cur string) decimal.Decimal {
	return v.Round(fraction(cur))
}

// isNegligible reports whether |v| is below the adjustment threshold.
func isNegligible(v decimal.Decimal) bool { return v.Abs().LessThan(adjustThreshold) }

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool { return money.GetCurrency(code) != nil }
