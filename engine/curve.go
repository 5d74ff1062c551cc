package engine

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Default curve shape, tuned so a round reaches 2.00x after roughly
// twenty seconds of flight.
const (
	DefaultGrowthRate = 0.08
	DefaultExponent   = 1.15
)

// Curve maps elapsed flight time to the display multiplier:
//
//	m(t) = 1.00 + (t × GrowthRate)^Exponent
//
// The multiplier starts at 1.00 and never decreases. Floating point is
// confined to the curve math; callers only ever see the rounded decimal.
type Curve struct {
	GrowthRate float64
	Exponent   float64
}

// DefaultCurve returns the curve used in production play
func DefaultCurve() Curve {
	return Curve{GrowthRate: DefaultGrowthRate, Exponent: DefaultExponent}
}

// At returns the multiplier after elapsed flight time, rounded half-up
// to two decimal places
func (c Curve) At(elapsed time.Duration) decimal.Decimal {
	t := elapsed.Seconds()
	if t <= 0 {
		return decimal.NewFromInt(1)
	}
	m := 1.0 + math.Pow(t*c.GrowthRate, c.Exponent)
	return decimal.NewFromFloat(m).Round(2)
}
