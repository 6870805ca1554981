package film

import "fmt"

// darkThresholdCurve maps pixel brightness to the AA threshold used at
// that brightness, following a piecewise-linear curve tuned for the
// visibility of sampling noise in dark regions.
func darkThresholdCurve(brightness float32) float32 {
	keys := [...]struct{ bri, thresh float32 }{
		{0.10, 0.0001},
		{0.20, 0.0010},
		{0.30, 0.0020},
		{0.40, 0.0035},
		{0.50, 0.0055},
		{0.60, 0.0075},
		{0.70, 0.0100},
		{0.80, 0.0150},
		{0.90, 0.0250},
		{1.00, 0.0400},
		{1.20, 0.0800},
		{1.40, 0.0950},
		{1.80, 0.1000},
	}

	if brightness <= keys[0].bri {
		return keys[0].thresh
	}
	for i := 1; i < len(keys); i++ {
		if brightness <= keys[i].bri {
			k0, k1 := keys[i-1], keys[i]
			return k0.thresh + (brightness-k0.bri)*(k1.thresh-k0.thresh)/(k1.bri-k0.bri)
		}
	}
	return keys[len(keys)-1].thresh
}

// NextPass transitions the film between rendering passes: the tile cursor
// resets, pass-interval autosaves fire, and with adaptive AA enabled the
// beauty pass is analyzed for residual color noise to rebuild the
// resample mask. It returns the number of pixels marked for resampling
// (the full frame when adaptive AA is off). skipPass suppresses all
// analysis and output, only advancing the counters.
//
// All workers must have returned from FinishArea before NextPass is
// called; the mask is rebuilt without synchronization against samplers.
func (f *Film) NextPass(view int, adaptiveAA bool, integratorName string, skipPass bool) int {
	f.splitterMu.Lock()
	f.nextAreaIdx = 0
	f.splitterMu.Unlock()

	f.nPass++
	f.imagesAutosavePasses++
	f.filmAutosavePasses++

	if skipPass {
		return 0
	}

	if f.State() == StateRunning {
		f.state.Store(int32(StatePaused))
		defer func() {
			if f.State() == StatePaused {
				f.state.Store(int32(StateRunning))
			}
		}()
	}

	if !f.aborted.Load() && !f.out.IsPreview() {
		if f.opts.ImagesAutosave.Kind == AutosavePass && f.imagesAutosavePasses >= f.opts.ImagesAutosave.Passes {
			if sink := f.imageOutputSink(); sink != nil {
				f.Flush(view, FlushAll, sink)
			}
			f.imagesAutosavePasses = 0
		}
		if f.checkpointing() && f.opts.FilmAutosave.Kind == AutosavePass && f.filmAutosavePasses >= f.opts.FilmAutosave.Passes {
			if f.imageOutputSink() != nil {
				if err := f.Save(); err != nil {
					f.progress.Warnf("film: autosave failed: %v", err)
				}
				f.filmAutosavePasses = 0
			}
		}
	}

	f.mask.Clear()

	nResample := 0
	if adaptiveAA && f.opts.AA.Threshold > 0 {
		f.analyzeNoise()
		nResample = f.visualizeMask(view)
	} else {
		nResample = f.w * f.h
	}

	if f.opts.Interactive {
		f.outMu.Lock()
		f.out.Flush(view, f.passes)
		f.outMu.Unlock()
	}

	passString := ""
	if f.filmLoaded {
		passString = "Film loaded + "
	}
	passString += fmt.Sprintf("Rendering pass %d of %d, resampling %d pixels.", f.nPass, f.nPasses, nResample)

	f.progress.Infof("%s: %s", integratorName, passString)
	f.progress.Init(f.w * f.h)
	f.progress.SetTag(passString)

	f.completedCnt = 0
	return nResample
}

// analyzeNoise scans the beauty pass and marks pixels whose color differs
// from a neighbor by at least the (possibly brightness-scaled) threshold.
// Only the combined pass drives the decision.
func (f *Film) analyzeNoise() {
	aa := &f.opts.AA
	beauty := f.images[0]
	samplingFactor := f.imageForType(PassDebugSamplingFactor)
	varianceHalfEdge := aa.VarianceEdgeSize / 2

	for y := 0; y < f.h-1; y++ {
		for x := 0; x < f.w-1; x++ {
			// Pixels never rendered (possible after a film load) always
			// resample.
			if beauty.At(x, y).Weight <= 0 {
				f.mask.SetBit(x, y)
			}

			if samplingFactor != nil {
				matSampleFactor := samplingFactor.At(x, y).Normalized().R
				if !aa.BackgroundResampling && matSampleFactor == 0 {
					continue
				}
			}

			pixCol := beauty.At(x, y).Normalized()
			threshold := aa.Threshold
			switch {
			case aa.DarkDetection == DarkDetectionLinear && aa.DarkThresholdFactor > 0:
				threshold = aa.Threshold * ((1 - aa.DarkThresholdFactor) + pixCol.Luma()*aa.DarkThresholdFactor)
			case aa.DarkDetection == DarkDetectionCurve:
				threshold = darkThresholdCurve(pixCol.Luma())
			}

			mark := func(nx, ny int) {
				if pixCol.Difference(beauty.At(nx, ny).Normalized(), aa.DetectColorNoise) >= threshold {
					f.mask.SetBit(x, y)
					f.mask.SetBit(nx, ny)
				}
			}
			mark(x+1, y)
			mark(x, y+1)
			mark(x+1, y+1)
			if x > 0 {
				mark(x-1, y+1)
			}

			if aa.VariancePixels > 0 {
				f.analyzeVariance(x, y, varianceHalfEdge, threshold)
			}
		}
	}
}

// analyzeVariance counts neighbor mismatches along a horizontal and a
// vertical probe centered on (x, y); when the combined count reaches the
// configured limit the whole edge square is marked. Probe coordinates
// clamp to [0, W-2] / [0, H-2]; the marked square clamps to the frame.
func (f *Film) analyzeVariance(x, y, halfEdge int, threshold float32) {
	aa := &f.opts.AA
	beauty := f.images[0]

	varianceX, varianceY := 0, 0

	for xd := -halfEdge; xd < halfEdge-1; xd++ {
		xi := x + xd
		if xi < 0 {
			xi = 0
		} else if xi >= f.w-1 {
			xi = f.w - 2
		}
		c0 := beauty.At(xi, y).Normalized()
		c1 := beauty.At(xi+1, y).Normalized()
		if c0.Difference(c1, aa.DetectColorNoise) >= threshold {
			varianceX++
		}
	}

	for yd := -halfEdge; yd < halfEdge-1; yd++ {
		yi := y + yd
		if yi < 0 {
			yi = 0
		} else if yi >= f.h-1 {
			yi = f.h - 2
		}
		c0 := beauty.At(x, yi).Normalized()
		c1 := beauty.At(x, yi+1).Normalized()
		if c0.Difference(c1, aa.DetectColorNoise) >= threshold {
			varianceY++
		}
	}

	if varianceX+varianceY >= aa.VariancePixels {
		for xd := -halfEdge; xd < halfEdge; xd++ {
			for yd := -halfEdge; yd < halfEdge; yd++ {
				xi := x + xd
				if xi < 0 {
					xi = 0
				} else if xi >= f.w {
					xi = f.w - 1
				}
				yi := y + yd
				if yi < 0 {
					yi = 0
				} else if yi >= f.h {
					yi = f.h - 1
				}
				f.mask.SetBit(xi, yi)
			}
		}
	}
}

// visualizeMask counts the marked pixels and, for interactive renders with
// the sample mask display enabled, paints them into the sink: red-ish
// where red is the weakest channel, green-ish otherwise, with the blue
// channel signalling a material sampling factor above one.
func (f *Film) visualizeMask(view int) int {
	samplingFactor := f.imageForType(PassDebugSamplingFactor)
	show := f.opts.Interactive && f.opts.ShowSampleMask

	var colors []RGBA
	if show {
		colors = make([]RGBA, len(f.images))
	}

	nResample := 0
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			if !f.mask.GetBit(x, y) {
				continue
			}
			nResample++

			if !show {
				continue
			}
			matSampleFactor := float32(1)
			if samplingFactor != nil {
				matSampleFactor = samplingFactor.At(x, y).Normalized().R
				if !f.opts.AA.BackgroundResampling && matSampleFactor == 0 {
					continue
				}
			}
			for idx := range f.images {
				pix := f.images[idx].At(x, y).Normalized()
				bri := pix.Luma()
				blue := bri
				if matSampleFactor > 1 {
					blue = 0.7
				}
				if pix.R < pix.G && pix.R < pix.B {
					colors[idx] = RGBA{0.7, bri, blue, 1}
				} else {
					colors[idx] = RGBA{bri, 0.7, blue, 1}
				}
			}
			f.outMu.Lock()
			f.out.PutPixel(view, x, y, f.passes, colors)
			f.outMu.Unlock()
		}
	}
	return nResample
}
