package film

import "math"

// FilterType selects the reconstruction filter used to splat samples.
type FilterType int

const (
	FilterBox FilterType = iota
	FilterGauss
	FilterMitchell
	FilterLanczos2
)

// String returns the canonical option name of the filter.
func (f FilterType) String() string {
	switch f {
	case FilterGauss:
		return "gauss"
	case FilterMitchell:
		return "mitchell"
	case FilterLanczos2:
		return "lanczos2"
	default:
		return "box"
	}
}

const (
	filterTableSize = 16
	maxFilterSize   = 8
)

// gaussExp is exp(-6), subtracted so the Gaussian reaches zero at the
// filter border instead of being truncated with a step.
const gaussExp = 0.00247875

type filterFunc func(dx, dy float64) float64

func filterBox(dx, dy float64) float64 { return 1 }

// filterMitchell is the Mitchell-Netravali filter with B = C = 1/3 as
// suggested by the authors, evaluated radially over a support of 2.
func filterMitchell(dx, dy float64) float64 {
	x := 2 * math.Sqrt(dx*dx+dy*dy)
	if x >= 2 {
		return 0
	}
	if x >= 1 { // 1 <= |x| < 2
		return x*(x*(x*-0.38888889+2.0)-3.33333333) + 1.77777778
	}
	return x*x*(1.16666666*x-2.0) + 0.88888889
}

func filterGauss(dx, dy float64) float64 {
	r2 := dx*dx + dy*dy
	return math.Max(0, math.Exp(-6*r2)-gaussExp)
}

// filterLanczos2 is a sinc filter windowed by a wider sinc, support 2.
func filterLanczos2(dx, dy float64) float64 {
	x := math.Sqrt(dx*dx + dy*dy)
	if x == 0 {
		return 1
	}
	if -2 < x && x < 2 {
		a := math.Pi * x
		b := math.Pi / 2 * x
		return (math.Sin(a) * math.Sin(b)) / (a * b)
	}
	return 0
}

// filterTable holds a precomputed reconstruction-filter LUT sampled on a
// single quadrant (all supported filters are radially symmetric).
// Negative lobe values are preserved.
type filterTable struct {
	table      [filterTableSize * filterTableSize]float32
	width      float64 // effective filter width in pixels
	tableScale float64 // pixel-space distance to table index
}

// newFilterTable builds the LUT for the given filter. The nominal width is
// half the configured filter size; Mitchell and Gauss widen it by 2.6 and
// 2.0 to cover their larger support. The effective width is clamped so the
// filter covers at least one pixel and at most maxFilterSize/2 pixels.
func newFilterTable(ft FilterType, filterSize float64) *filterTable {
	t := &filterTable{width: filterSize * 0.5}

	var fn filterFunc
	switch ft {
	case FilterMitchell:
		fn = filterMitchell
		t.width *= 2.6
	case FilterLanczos2:
		fn = filterLanczos2
	case FilterGauss:
		fn = filterGauss
		t.width *= 2.0
	default:
		fn = filterBox
	}

	t.width = math.Min(math.Max(0.501, t.width), 0.5*maxFilterSize)

	scale := 1.0 / filterTableSize
	i := 0
	for y := 0; y < filterTableSize; y++ {
		for x := 0; x < filterTableSize; x++ {
			t.table[i] = float32(fn((float64(x)+0.5)*scale, (float64(y)+0.5)*scale))
			i++
		}
	}

	t.tableScale = 0.9999 * filterTableSize / t.width
	return t
}

// at returns the LUT entry for the given table indices.
func (t *filterTable) at(xi, yi int) float32 {
	return t.table[yi*filterTableSize+xi]
}
