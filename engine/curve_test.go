package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCurve_At(t *testing.T) {
	curve := DefaultCurve()

	tests := []struct {
		name     string
		elapsed  time.Duration
		expected string
	}{
		{"takeoff", 0, "1.00"},
		{"first tick", 100 * time.Millisecond, "1.00"},
		{"half second", 500 * time.Millisecond, "1.02"},
		{"one second", time.Second, "1.05"},
		{"two seconds", 2 * time.Second, "1.12"},
		{"five seconds", 5 * time.Second, "1.35"},
		{"ten seconds", 10 * time.Second, "1.77"},
		{"twenty seconds", 20 * time.Second, "2.72"},
		{"thirty seconds", 30 * time.Second, "3.74"},
		{"one minute", time.Minute, "7.07"},
		{"two minutes", 2 * time.Minute, "14.48"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, curve.At(tt.elapsed).StringFixed(2))
		})
	}
}

func TestCurve_MonotonicallyNonDecreasing(t *testing.T) {
	curve := DefaultCurve()

	prev := curve.At(0)
	for ms := 100; ms <= 30000; ms += 100 {
		m := curve.At(time.Duration(ms) * time.Millisecond)
		assert.True(t, m.GreaterThanOrEqual(prev),
			"multiplier decreased at %dms: %s after %s", ms, m, prev)
		prev = m
	}
}

func TestCurve_NegativeElapsed(t *testing.T) {
	curve := DefaultCurve()

	assert.True(t, curve.At(-time.Second).Equal(decimal.NewFromInt(1)))
}
