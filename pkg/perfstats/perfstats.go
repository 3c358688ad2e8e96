package perfstats

import "time"

// Two scalars (N samples and X total amount), which can measure total and average values.
type Accumulator struct {
	Samples int64
	Total   float64
}

func (a *Accumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *Accumulator) AddSample(v float64) {
	a.Samples++
	a.Total += v
}

// Average returns zero when there are no samples. Use Mean if you need to tell the difference.
func (a *Accumulator) Average() float64 {
	if a.Samples == 0 {
		return 0
	}
	return a.Total / float64(a.Samples)
}

// Mean returns (average, true), or (0, false) if there are no samples
func (a *Accumulator) Mean() (float64, bool) {
	if a.Samples == 0 {
		return 0, false
	}
	return a.Total / float64(a.Samples), true
}

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}
