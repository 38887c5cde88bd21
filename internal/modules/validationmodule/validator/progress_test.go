package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFractionStartsAtZero(t *testing.T) {
	pe := NewProgressEstimator()
	assert.Equal(t, 0.0, pe.Fraction())
}

func TestFractionReflectsProcessedShare(t *testing.T) {
	pe := NewProgressEstimator()
	pe.AddDiscovered(4)
	pe.Update()
	pe.Update()
	assert.InDelta(t, 0.5, pe.Fraction(), 0.001)
}

func TestFractionNeverRegresses(t *testing.T) {
	pe := NewProgressEstimator()
	pe.AddDiscovered(2)
	pe.Update()

	first := pe.Fraction()
	assert.InDelta(t, 0.5, first, 0.001)

	// Discovering more work shrinks the raw share; the reported fraction
	// must hold
	pe.AddDiscovered(8)
	assert.GreaterOrEqual(t, pe.Fraction(), first)
}

func TestFractionClampedToOne(t *testing.T) {
	pe := NewProgressEstimator()
	pe.AddDiscovered(1)
	pe.Update()
	pe.Update()
	assert.Equal(t, 1.0, pe.Fraction())
}

func TestGetEstimateRate(t *testing.T) {
	pe := NewProgressEstimator()
	pe.AddDiscovered(10)
	for i := 0; i < 5; i++ {
		pe.Update()
	}

	fraction, _, _ := pe.GetEstimate()
	assert.InDelta(t, 0.5, fraction, 0.001)

	stats := pe.GetStats()
	assert.Equal(t, int64(5), stats["processed_folders"])
	assert.Equal(t, int64(10), stats["discovered_folders"])
}
