package validator

import (
	"sync"
	"time"
)

// ProgressEstimator tracks folder counts and processing rate for one
// validation run. The total grows as new subfolders are discovered, so the
// reported fraction is clamped monotonic and the caller's sink never
// observes a regression.
type ProgressEstimator struct {
	mu             sync.RWMutex
	startTime      time.Time
	lastUpdateTime time.Time

	discovered int64
	processed  int64

	recentSamples []rateSample
	maxSamples    int

	smoothingFactor float64
	currentRate     float64

	lastFraction float64
}

type rateSample struct {
	timestamp time.Time
	processed int64
}

// NewProgressEstimator creates an estimator for a fresh run
func NewProgressEstimator() *ProgressEstimator {
	return &ProgressEstimator{
		startTime:       time.Now(),
		lastUpdateTime:  time.Now(),
		maxSamples:      10,
		smoothingFactor: 0.3,
		recentSamples:   make([]rateSample, 0, 10),
	}
}

// AddDiscovered grows the estimated total by n newly discovered folders
func (pe *ProgressEstimator) AddDiscovered(n int) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.discovered += int64(n)
}

// Update records that another folder finished processing
func (pe *ProgressEstimator) Update() {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	now := time.Now()
	pe.processed++
	pe.lastUpdateTime = now

	pe.recentSamples = append(pe.recentSamples, rateSample{
		timestamp: now,
		processed: pe.processed,
	})
	if len(pe.recentSamples) > pe.maxSamples {
		pe.recentSamples = pe.recentSamples[len(pe.recentSamples)-pe.maxSamples:]
	}

	pe.calculateRate()
}

func (pe *ProgressEstimator) calculateRate() {
	if len(pe.recentSamples) < 2 {
		return
	}

	oldest := pe.recentSamples[0]
	newest := pe.recentSamples[len(pe.recentSamples)-1]

	duration := newest.timestamp.Sub(oldest.timestamp).Seconds()
	if duration <= 0 {
		return
	}

	foldersPerSecond := float64(newest.processed-oldest.processed) / duration

	if pe.currentRate == 0 {
		pe.currentRate = foldersPerSecond
	} else {
		pe.currentRate = pe.smoothingFactor*foldersPerSecond + (1-pe.smoothingFactor)*pe.currentRate
	}
}

// Fraction returns the completion fraction in [0,1], never decreasing
// across successive calls
func (pe *ProgressEstimator) Fraction() float64 {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	var fraction float64
	if pe.discovered > 0 {
		fraction = float64(pe.processed) / float64(pe.discovered)
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction < pe.lastFraction {
		fraction = pe.lastFraction
	}
	pe.lastFraction = fraction
	return fraction
}

// GetEstimate returns the current fraction, ETA, and processing rate
func (pe *ProgressEstimator) GetEstimate() (fraction float64, eta time.Time, foldersPerSecond float64) {
	fraction = pe.Fraction()

	pe.mu.RLock()
	defer pe.mu.RUnlock()

	remaining := pe.discovered - pe.processed
	if pe.currentRate > 0 && remaining > 0 {
		remainingSeconds := float64(remaining) / pe.currentRate
		eta = time.Now().Add(time.Duration(remainingSeconds) * time.Second)
	} else if pe.processed > 0 && remaining > 0 {
		elapsed := time.Since(pe.startTime)
		if elapsed.Seconds() > 0 {
			avgRate := float64(pe.processed) / elapsed.Seconds()
			if avgRate > 0 {
				remainingSeconds := float64(remaining) / avgRate
				eta = time.Now().Add(time.Duration(remainingSeconds) * time.Second)
			}
		}
	}

	return fraction, eta, pe.currentRate
}

// GetStats returns detailed statistics for status endpoints
func (pe *ProgressEstimator) GetStats() map[string]interface{} {
	pe.mu.RLock()
	defer pe.mu.RUnlock()

	return map[string]interface{}{
		"processed_folders":  pe.processed,
		"discovered_folders": pe.discovered,
		"elapsed_time":       time.Since(pe.startTime).String(),
		"folders_per_second": pe.currentRate,
	}
}
