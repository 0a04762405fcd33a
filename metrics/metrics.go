// Package metrics implements the small timing/throughput utilities used
// across the bus, recorder, and playback worker loops, plus their
// Prometheus exports.
//
// Grounded on original_source/app/timing.cpp/h: FrequencyCalculator (an
// exponential moving average frequency estimate), ActionPeriod (a
// phase-able periodic trigger), and Stopwatch (elapsed-time-since-press).
package metrics

import "github.com/axbycc/corebus/pclock"

// FrequencyCalculator is an EMA-smoothed count-per-second estimator,
// ported field-for-field from FrequencyCalculator in timing.cpp.
type FrequencyCalculator struct {
	clock       *pclock.Clock
	momentum    float64
	count       float64
	elapsedSec  float64
	frequency   float64
	prevCountUs uint64
}

// NewFrequencyCalculator constructs a calculator with the given momentum
// (0..1; higher biases more toward previous measurements) against clock.
func NewFrequencyCalculator(clock *pclock.Clock, momentum float64) *FrequencyCalculator {
	return &FrequencyCalculator{
		clock:       clock,
		momentum:    momentum,
		prevCountUs: clock.ProcessTimeUs(),
	}
}

// Count records cnt events having occurred since the last call.
func (f *FrequencyCalculator) Count(cnt uint64) {
	nowUs := f.clock.ProcessTimeUs()
	elapsedUs := nowUs - f.prevCountUs
	elapsedSec := float64(elapsedUs) * 1e-6

	f.elapsedSec += elapsedSec
	f.count += float64(cnt)
	f.updateFrequency()

	f.prevCountUs = nowUs
}

func (f *FrequencyCalculator) updateFrequency() {
	if f.elapsedSec > 0.03 {
		currentFreq := f.count / f.elapsedSec
		f.frequency = f.frequency*f.momentum + currentFreq*(1.0-f.momentum)
		f.count = 0
		f.elapsedSec = 0
	}
}

// GetFrequency returns the current smoothed count-per-second estimate.
func (f *FrequencyCalculator) GetFrequency() float64 {
	f.updateFrequency()
	return f.frequency
}

// Reset clears the accumulator without resetting the smoothed frequency.
func (f *FrequencyCalculator) Reset() {
	f.elapsedSec = 0
	f.count = 0
	f.prevCountUs = f.clock.ProcessTimeUs()
}

// ActionPeriod triggers true once per period, optionally phase-shifted so
// that periods started at the same moment don't all fire together.
type ActionPeriod struct {
	clock           *pclock.Clock
	periodSec       float64
	phaseSec        float64
	lastTriggeredMs uint64
}

// NewActionPeriod constructs a period of periodSec seconds.
func NewActionPeriod(clock *pclock.Clock, periodSec float64) *ActionPeriod {
	return &ActionPeriod{clock: clock, periodSec: periodSec}
}

// SetPhase offsets the period's trigger boundary by phaseSec seconds.
func (a *ActionPeriod) SetPhase(phaseSec float64) { a.phaseSec = phaseSec }

// Period returns the configured period in seconds.
func (a *ActionPeriod) Period() float64 { return a.periodSec }

// SecElapsed returns seconds since the period last triggered.
func (a *ActionPeriod) SecElapsed() float64 {
	return float64(a.clock.ProcessTimeMs()-a.lastTriggeredMs) / 1000.0
}

// ShouldAct reports whether the period boundary has been crossed since
// the last call, and if so records now as the new trigger time.
func (a *ActionPeriod) ShouldAct() bool {
	phaseMs := uint64(1000 * a.phaseSec)
	periodMs := uint64(1000 * a.periodSec)
	if periodMs == 0 {
		return false
	}
	currentMs := a.clock.ProcessTimeMs()
	currentIdx := (currentMs + phaseMs) / periodMs
	lastIdx := (a.lastTriggeredMs + phaseMs) / periodMs

	if currentIdx > lastIdx {
		a.lastTriggeredMs = currentMs
		return true
	}
	return false
}

// Stopwatch measures elapsed time since the last Press call.
type Stopwatch struct {
	clock       *pclock.Clock
	lastPressUs uint64
}

// NewStopwatch constructs a Stopwatch, pressed once at construction.
func NewStopwatch(clock *pclock.Clock) *Stopwatch {
	s := &Stopwatch{clock: clock}
	s.Press()
	return s
}

// Press returns seconds since the last Press and resets the reference
// point to now.
func (s *Stopwatch) Press() float64 {
	now := s.clock.ProcessTimeUs()
	dt := float64(now-s.lastPressUs) / 1e6
	s.lastPressUs = now
	return dt
}

// SecSincePress returns seconds since the last Press without resetting
// the reference point.
func (s *Stopwatch) SecSincePress() float64 {
	now := s.clock.ProcessTimeUs()
	return float64(now-s.lastPressUs) / 1e6
}
