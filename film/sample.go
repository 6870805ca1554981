package film

import "math"

// roundToInt matches the original accumulator's rounding: floor(x + 0.5).
func roundToInt(x float64) int {
	return int(math.Floor(x + 0.5))
}

// footprint computes the filter footprint of a sample at integer pixel
// (x, y) with sub-pixel offset (dx, dy), clipped to the frame. It reports
// false when the clipped footprint is empty.
func (f *Film) footprint(x, y int, dx, dy float64) (dx0, dx1, dy0, dy1 int, ok bool) {
	fw := f.table.width

	dx0 = maxInt(f.cx0-x, roundToInt(dx-fw))
	dx1 = minInt(f.cx1-x-1, roundToInt(dx+fw-1))
	dy0 = maxInt(f.cy0-y, roundToInt(dy-fw))
	dy1 = minInt(f.cy1-y-1, roundToInt(dy+fw-1))

	return dx0, dx1, dy0, dy1, dx0 <= dx1 && dy0 <= dy1
}

// tableIndices fills idx with the filter-table index of each footprint
// cell along one axis. offs is the sub-pixel offset minus 0.5 so distances
// are measured from the sample position to pixel centers.
func (f *Film) tableIndices(d0, d1 int, offs float64, idx *[maxFilterSize + 1]int) {
	for i, n := d0, 0; i <= d1; i, n = i+1, n+1 {
		d := math.Abs((float64(i) - offs) * f.table.tableScale)
		idx[n] = int(math.Floor(d))
	}
}

// DoMoreSamples reports whether pixel (x, y) (absolute frame coordinates)
// still needs samples in the current pass. With adaptive AA disabled every
// pixel does. Reads are unsynchronized with the mask: the mask is only
// written between passes, while no worker is sampling.
func (f *Film) DoMoreSamples(x, y int) bool {
	if f.opts.AA.Threshold <= 0 {
		return true
	}
	return f.mask.GetBit(x-f.cx0, y-f.cy0)
}

// AddSample splats one sample across its filter footprint into every pass
// image. (x, y) is the integer pixel in absolute frame coordinates and
// (dx, dy) the sub-pixel offset within [0, 1]. The AA-samples pass
// accumulates weight only, spreading invAAMaxSamples evenly over the
// footprint.
//
// Safe for concurrent use: the image mutex is held for the whole
// footprint, including pixels outside the worker's own tile.
func (f *Film) AddSample(cp *ColorPasses, x, y int, dx, dy float64, invAAMaxSamples float64) {
	dx0, dx1, dy0, dy1, ok := f.footprint(x, y, dx, dy)
	if !ok {
		return
	}

	var xIndex, yIndex [maxFilterSize + 1]int
	f.tableIndices(dx0, dx1, dx-0.5, &xIndex)
	f.tableIndices(dy0, dy1, dy-0.5, &yIndex)

	x0, x1 := x+dx0, x+dx1
	y0, y1 := y+dy0, y+dy1
	footprintArea := float32((x1 - x0 + 1) * (y1 - y0 + 1))
	aaWeight := float32(invAAMaxSamples) / footprintArea

	f.imageMu.Lock()
	defer f.imageMu.Unlock()

	for j := y0; j <= y1; j++ {
		for i := x0; i <= x1; i++ {
			filterWt := f.table.at(xIndex[i-x0], yIndex[j-y0])

			for idx := range f.images {
				f.splat(f.images[idx], f.passes.ExtType(idx), cp, i, j, filterWt, aaWeight)
			}
			for idx := range f.auxImages {
				f.splat(f.auxImages[idx], f.passes.AuxType(idx), cp, i, j, filterWt, aaWeight)
			}
		}
	}
}

// splat applies one footprint cell of one pass.
func (f *Film) splat(im *PixelImage, t IntPassType, cp *ColorPasses, i, j int, filterWt, aaWeight float32) {
	px := im.Ref(i-f.cx0, j-f.cy0)

	if t == PassAASamples {
		px.Weight += aaWeight
		return
	}

	col := cp.Get(t).ClampProportional(f.opts.AA.ClampSamples)
	if f.opts.Primary.PremultAlpha {
		col = col.AlphaPremultiply()
	}
	px.Col = px.Col.Add(col.Scale(filterWt))
	px.Weight += filterWt
}

// AddDensitySample splats a density estimation sample. It uses the same
// footprint and filter weights as AddSample but accumulates into the
// unweighted density image under its own mutex. A film without density
// estimation ignores the call.
func (f *Film) AddDensitySample(c RGB, x, y int, dx, dy float64) {
	if !f.opts.EstimateDensity {
		return
	}

	dx0, dx1, dy0, dy1, ok := f.footprint(x, y, dx, dy)
	if !ok {
		return
	}

	var xIndex, yIndex [maxFilterSize + 1]int
	f.tableIndices(dx0, dx1, dx-0.5, &xIndex)
	f.tableIndices(dy0, dy1, dy-0.5, &yIndex)

	x0, x1 := x+dx0, x+dx1
	y0, y1 := y+dy0, y+dy1

	f.densityMu.Lock()
	defer f.densityMu.Unlock()

	for j := y0; j <= y1; j++ {
		for i := x0; i <= x1; i++ {
			f.density.add(i-f.cx0, j-f.cy0, c, f.table.at(xIndex[i-x0], yIndex[j-y0]))
		}
	}
	f.numDensitySamples++
}

// NumDensitySamples returns the density sample count.
func (f *Film) NumDensitySamples() int64 { return f.numDensitySamples }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
