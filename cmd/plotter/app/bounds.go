package app

import "math"

const (
	// minimumSpan keeps flat series from collapsing the value scale
	minimumSpan = 1e-3

	// desired number of value scale ticks
	valueTicks = 8
)

// ValueBounds tracks the value range of the plotted series.
type ValueBounds struct {
	min, max float64
	count    uint64

	fixedMin *float64
	fixedMax *float64
}

func NewValueBounds() *ValueBounds {
	return &ValueBounds{
		min: math.Inf(1),
		max: math.Inf(-1),
	}
}

// WithFixedMin pins the bottom of the scale.
func (b *ValueBounds) WithFixedMin(v float64) *ValueBounds {
	b.fixedMin = &v
	return b
}

// WithFixedMax pins the top of the scale.
func (b *ValueBounds) WithFixedMax(v float64) *ValueBounds {
	b.fixedMax = &v
	return b
}

// Update records a value. NaN and infinities are ignored.
func (b *ValueBounds) Update(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}

	b.min = math.Min(b.min, v)
	b.max = math.Max(b.max, v)
	b.count++
}

// Count returns the number of recorded values.
func (b *ValueBounds) Count() uint64 {
	return b.count
}

// Observed returns the smallest and largest recorded values.
func (b *ValueBounds) Observed() (float64, float64) {
	if b.count == 0 {
		return 0, 0
	}
	return b.min, b.max
}

// Scale returns the value scale: bottom, top and the tick step. Unless
// pinned, bottom and top are rounded outwards to a multiple of step.
func (b *ValueBounds) Scale() (lo, hi, step float64) {
	lo, hi = -1, 1
	if b.count > 0 {
		lo, hi = b.min, b.max
	}
	if b.fixedMin != nil {
		lo = *b.fixedMin
	}
	if b.fixedMax != nil {
		hi = *b.fixedMax
	}

	if hi-lo < minimumSpan {
		center := (hi + lo) / 2
		lo, hi = center-minimumSpan/2, center+minimumSpan/2
	}

	step = niceStep(hi-lo, valueTicks)
	if b.fixedMin == nil {
		lo = math.Floor(lo/step) * step
	}
	if b.fixedMax == nil {
		hi = math.Ceil(hi/step) * step
	}
	return lo, hi, step
}

// niceStep returns a 1, 2 or 5 times power of ten step dividing span into
// roughly ticks intervals.
func niceStep(span float64, ticks int) float64 {
	rough := span / float64(ticks)
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))

	for _, m := range []float64{1, 2, 5} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}
	return 10 * magnitude
}
