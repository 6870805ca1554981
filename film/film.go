// Package film implements the pixel accumulator and adaptive anti-aliasing
// controller of a progressive offline renderer.
//
// Render workers pull tiles from the film, splat filtered sub-pixel samples
// into a set of weighted pass images, and hand finished tiles back for
// export. Between passes the film analyzes the beauty pass for residual
// color noise and marks pixels that need more samples. The whole
// accumulator state can be checkpointed to disk, reloaded, and merged with
// sibling films produced by other hosts or frames.
package film

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var errNilSink = errors.New("film: output sink must not be nil")

// State is the lifecycle state of a film.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFinished
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// FlushFlags select what Flush exports.
type FlushFlags int

const (
	// FlushImage exports the accumulated pass images.
	FlushImage FlushFlags = 1 << iota
	// FlushDensity blends the density estimate into the beauty pass.
	FlushDensity

	// FlushAll exports everything.
	FlushAll = FlushImage | FlushDensity
)

// exportRule is the per-pass export behavior, resolved once at film
// construction so the hot export loops stay branch-light.
type exportRule int

const (
	ruleNormalized exportRule = iota
	ruleNormalizedCeil
	ruleWeightAsColor
)

func exportRuleFor(t IntPassType) exportRule {
	switch t {
	case PassAASamples:
		return ruleWeightAsColor
	case PassObjIndexAbs, PassObjIndexAutoAbs, PassMatIndexAbs, PassMatIndexAutoAbs:
		return ruleNormalizedCeil
	default:
		return ruleNormalized
	}
}

// Film is the accumulator structure that survives across passes. All
// mutation happens through its methods; imageMu, densityMu, splitterMu and
// outMu guard the pass images, the density image, the tile cursor and the
// sink writes respectively.
type Film struct {
	w, h               int
	cx0, cy0, cx1, cy1 int

	opts   Options
	passes *PassSet
	table  *filterTable

	images    []*PixelImage // external passes, index 0 is beauty
	auxImages []*PixelImage

	density           *DensityImage
	numDensitySamples int64

	mask     *ResampleMask
	splitter *tileSplitter

	out      SinkWriter
	out2     SinkWriter
	progress ProgressSink
	clock    Clock

	rules []exportRule

	// imageMu guards all pass images during accumulation. AddSample holds
	// it across its whole footprint; footprints are small so contention
	// stays acceptable.
	imageMu    sync.Mutex
	densityMu  sync.Mutex
	splitterMu sync.Mutex
	outMu      sync.Mutex

	state   atomic.Int32
	aborted atomic.Bool

	nextAreaIdx  int
	areaCnt      int
	completedCnt int

	nPass   int
	nPasses int

	samplingOffset     uint64
	baseSamplingOffset uint64
	filmLoaded         bool

	imagesAutosavePasses int
	filmAutosavePasses   int
	imagesAutosaveMark   time.Time
	filmAutosaveMark     time.Time

	checkInfo FilmCheckInfo
}

// New creates a film for the given frame geometry, pass set and primary
// sink. The film owns its pass images exclusively; accessors return
// borrowed references.
func New(opts Options, passes *PassSet, out SinkWriter) (*Film, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if passes == nil || passes.ExtPasses() == 0 {
		return nil, ErrNoPasses
	}
	if out == nil {
		return nil, errNilSink
	}

	f := &Film{
		w:        opts.Width,
		h:        opts.Height,
		cx0:      opts.XStart,
		cy0:      opts.YStart,
		cx1:      opts.XStart + opts.Width,
		cy1:      opts.YStart + opts.Height,
		opts:     opts,
		passes:   passes,
		table:    newFilterTable(opts.Filter, opts.FilterSize),
		out:      out,
		progress: NopProgress{},
		clock:    SystemClock{},
	}

	f.images = make([]*PixelImage, passes.ExtPasses())
	for i := range f.images {
		f.images[i] = NewPixelImage(f.w, f.h)
	}
	f.auxImages = make([]*PixelImage, passes.AuxPasses())
	for i := range f.auxImages {
		f.auxImages[i] = NewPixelImage(f.w, f.h)
	}

	f.rules = make([]exportRule, passes.ExtPasses())
	for i := range f.rules {
		f.rules[i] = exportRuleFor(passes.ExtType(i))
	}

	if opts.EstimateDensity {
		f.density = NewDensityImage(f.w, f.h)
	}

	f.mask = NewResampleMask(f.w, f.h)
	return f, nil
}

// SetSecondaryOutput attaches an optional second sink with its own
// encoding, written alongside the primary on Flush.
func (f *Film) SetSecondaryOutput(out SinkWriter, enc SinkEncoding) {
	f.out2 = out
	f.opts.Secondary = enc
}

// SetProgress replaces the progress sink. Passing nil restores the no-op.
func (f *Film) SetProgress(p ProgressSink) {
	if p == nil {
		p = NopProgress{}
	}
	f.progress = p
}

// SetClock replaces the autosave clock. Passing nil restores the system
// clock.
func (f *Film) SetClock(c Clock) {
	if c == nil {
		c = SystemClock{}
	}
	f.clock = c
}

// Width returns the frame width.
func (f *Film) Width() int { return f.w }

// Height returns the frame height.
func (f *Film) Height() int { return f.h }

// PassSet returns the film's pass mapping.
func (f *Film) PassSet() *PassSet { return f.passes }

// State returns the current lifecycle state.
func (f *Film) State() State { return State(f.state.Load()) }

// Image returns the pixel image of external pass idx.
func (f *Film) Image(idx int) *PixelImage { return f.images[idx] }

// AuxImage returns the pixel image of auxiliary pass idx.
func (f *Film) AuxImage(idx int) *PixelImage { return f.auxImages[idx] }

// imageForType finds the pass image holding type t, searching external
// passes (excluding beauty) first, then auxiliary passes.
func (f *Film) imageForType(t IntPassType) *PixelImage {
	if idx := f.passes.ExtIndex(t); idx > 0 {
		return f.images[idx]
	}
	if idx := f.passes.AuxIndex(t); idx >= 0 {
		return f.auxImages[idx]
	}
	return nil
}

// SamplingOffset returns the persisted sampling offset, used by
// low-discrepancy samplers to continue resumed renders without overlap.
func (f *Film) SamplingOffset() uint64 { return f.samplingOffset }

// SetSamplingOffset updates the persisted sampling offset.
func (f *Film) SetSamplingOffset(n uint64) { f.samplingOffset = n }

// BaseSamplingOffset returns the persisted base sampling offset.
func (f *Film) BaseSamplingOffset() uint64 { return f.baseSamplingOffset }

// SetBaseSamplingOffset updates the persisted base sampling offset.
func (f *Film) SetBaseSamplingOffset(n uint64) { f.baseSamplingOffset = n }

// Resumed reports whether a prior film was merged in during Init.
func (f *Film) Resumed() bool { return f.filmLoaded }

// Init prepares the film for a render of numPasses passes: pass images are
// zeroed, progress resets, and, when film checkpointing is enabled and the
// sink is not a preview, prior sibling films are merged in and the previous
// checkpoint is backed up.
func (f *Film) Init(numPasses int) {
	for _, im := range f.images {
		im.Clear()
	}
	for _, im := range f.auxImages {
		im.Clear()
	}
	if f.opts.EstimateDensity {
		if f.density == nil {
			f.density = NewDensityImage(f.w, f.h)
		} else {
			f.density.Clear()
		}
		f.numDensitySamples = 0
	}

	f.splitter = newTileSplitter(f.w, f.h, f.cx0, f.cy0, f.opts.TileSize, f.opts.TilesOrder, f.opts.NumThreads)
	f.nextAreaIdx = 0
	f.areaCnt = f.splitter.size()

	f.progress.Init(f.w * f.h)

	f.aborted.Store(false)
	f.completedCnt = 0
	f.nPass = 1
	f.nPasses = numPasses
	f.filmLoaded = false

	f.imagesAutosavePasses = 0
	f.filmAutosavePasses = 0
	now := f.clock.Now()
	f.imagesAutosaveMark = now
	f.filmAutosaveMark = now

	if !f.out.IsPreview() {
		if f.opts.FilmFileMode == FilmFileLoadSave {
			f.loadAllInFolder()
		}
		if f.opts.FilmFileMode == FilmFileLoadSave || f.opts.FilmFileMode == FilmFileSave {
			f.backupFilmFile()
		}
	}
	f.updateCheckInfo()

	f.state.Store(int32(StateRunning))
}

// Abort sets the abort flag. Workers observe it through NextArea; any
// in-flight sample completes normally.
func (f *Film) Abort() {
	f.aborted.Store(true)
	f.state.Store(int32(StateAborted))
}

// Aborted reports whether the render was aborted.
func (f *Film) Aborted() bool { return f.aborted.Load() }

// Finish marks the render complete. A final Flush after Finish also saves
// the film checkpoint when checkpointing is enabled.
func (f *Film) Finish() {
	if !f.aborted.Load() {
		f.state.Store(int32(StateFinished))
	}
}

// NextArea atomically pulls the next tile. It reports false when the pass
// is exhausted or the render was aborted, which ends the pass for the
// calling worker.
func (f *Film) NextArea(view int, a *TileArea) bool {
	if f.aborted.Load() {
		return false
	}

	ifilterw := int(math.Ceil(f.table.width))

	f.splitterMu.Lock()
	n := f.nextAreaIdx
	f.nextAreaIdx++
	f.splitterMu.Unlock()

	if !f.splitter.area(n, a) {
		return false
	}

	a.SX0 = a.X + ifilterw
	a.SX1 = a.X + a.W - ifilterw
	a.SY0 = a.Y + ifilterw
	a.SY1 = a.Y + a.H - ifilterw

	if f.opts.Interactive {
		f.outMu.Lock()
		f.out.HighlightArea(view, a.X, a.Y, a.X+a.W, a.Y+a.H)
		f.outMu.Unlock()
	}
	return true
}

// exportPixel computes the export colors of image-local pixel (i, j) into
// dst, one entry per external pass, applying the per-pass export rule, the
// optional density blend, clamping and the sink encoding.
func (f *Film) exportPixel(i, j int, flags FlushFlags, densityFactor float32, enc SinkEncoding, dst []RGBA) {
	for idx := range f.images {
		var c RGBA
		switch f.rules[idx] {
		case ruleWeightAsColor:
			w := f.images[idx].At(i, j).Weight
			c = RGBA{w, w, w, w}
		case ruleNormalizedCeil:
			c = f.images[idx].At(i, j).Normalized().Ceil()
		default:
			if flags&FlushImage != 0 {
				c = f.images[idx].At(i, j).Normalized()
			}
		}

		if idx == 0 && flags&FlushDensity != 0 && densityFactor > 0 {
			d := f.density.At(i, j)
			c.R += d.R * densityFactor
			c.G += d.G * densityFactor
			c.B += d.B * densityFactor
		}

		c = c.ClampRGB0()
		c = c.Encode(enc.ColorSpace, enc.Gamma)
		if enc.PremultAlpha && idx == 0 {
			c = c.AlphaPremultiply()
		}
		dst[idx] = c.ClampAlpha()
	}
}

// FinishArea exports a finished tile to the sink: every covered pixel is
// normalized, encoded and pushed exactly once for this pass, then the
// derived edge and toon passes are regenerated for the tile. A sink
// refusing a pixel aborts the render.
func (f *Film) FinishArea(view int, a TileArea) {
	f.outMu.Lock()
	defer f.outMu.Unlock()

	x0, y0 := a.X-f.cx0, a.Y-f.cy0
	x1, y1 := x0+a.W, y0+a.H

	colors := make([]RGBA, len(f.images))
	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			f.exportPixel(i, j, FlushImage, 0, f.opts.Primary, colors)
			if !f.out.PutPixel(view, i, j, f.passes, colors) {
				f.aborted.Store(true)
				f.state.Store(int32(StateAborted))
			}
		}
	}

	f.deriveEdgePasses(view, x0, x1, y0, y1, true, f.out, nil)

	if f.opts.Interactive {
		f.out.FlushArea(view, a.X, a.Y, x1+f.cx0, y1+f.cy0, f.passes)
	}

	if f.State() == StateRunning && !f.out.IsPreview() {
		f.tickAutosaveTimers(view)
	}

	f.completedCnt++
	if f.completedCnt == f.areaCnt {
		f.progress.Done()
	} else {
		f.progress.Update(a.W * a.H)
	}
}

// tickAutosaveTimers fires the time-interval autosaves. Pass-interval
// autosaves are handled in NextPass. Caller holds outMu.
func (f *Film) tickAutosaveTimers(view int) {
	now := f.clock.Now()

	if f.opts.ImagesAutosave.Kind == AutosaveTime &&
		now.Sub(f.imagesAutosaveMark).Seconds() > f.opts.ImagesAutosave.Seconds {
		if sink := f.imageOutputSink(); sink != nil {
			f.flushLocked(view, FlushAll, sink)
		}
		f.imagesAutosaveMark = now
	}

	if f.checkpointing() && f.opts.FilmAutosave.Kind == AutosaveTime &&
		now.Sub(f.filmAutosaveMark).Seconds() > f.opts.FilmAutosave.Seconds {
		if f.imageOutputSink() != nil {
			if err := f.Save(); err != nil {
				f.progress.Warnf("film: autosave failed: %v", err)
			}
		}
		f.filmAutosaveMark = now
	}
}

func (f *Film) checkpointing() bool {
	return f.opts.FilmFileMode == FilmFileSave || f.opts.FilmFileMode == FilmFileLoadSave
}

// imageOutputSink returns a sink that persists image files, preferring the
// primary, or nil when neither does.
func (f *Film) imageOutputSink() SinkWriter {
	if f.out != nil && f.out.IsImageOutput() {
		return f.out
	}
	if f.out2 != nil && f.out2.IsImageOutput() {
		return f.out2
	}
	return nil
}

// Flush exports the full frame to the given sink (the primary when nil),
// and to the secondary sink when one is attached. After Finish it also
// saves the film checkpoint.
func (f *Film) Flush(view int, flags FlushFlags, sink SinkWriter) {
	f.outMu.Lock()
	defer f.outMu.Unlock()
	f.flushLocked(view, flags, sink)
}

func (f *Film) flushLocked(view int, flags FlushFlags, sink SinkWriter) {
	out1 := sink
	if out1 == nil {
		out1 = f.out
	}
	out2 := f.out2
	if out1.IsPreview() {
		out2 = nil // previews never hit the secondary file output
	}
	if out1 == out2 {
		out1 = nil
	}

	var densityFactor float32
	if f.opts.EstimateDensity && f.numDensitySamples > 0 {
		densityFactor = float32(f.w*f.h) / float32(f.numDensitySamples)
	}
	if f.density == nil {
		flags &^= FlushDensity
	}

	colors := make([]RGBA, len(f.images))
	var colors2 []RGBA
	if out2 != nil {
		colors2 = make([]RGBA, len(f.images))
	}

	for j := 0; j < f.h; j++ {
		for i := 0; i < f.w; i++ {
			if out1 != nil {
				f.exportPixel(i, j, flags, densityFactor, f.opts.Primary, colors)
				out1.PutPixel(view, i, j, f.passes, colors)
			}
			if out2 != nil {
				f.exportPixel(i, j, flags, densityFactor, f.opts.Secondary, colors2)
				out2.PutPixel(view, i, j, f.passes, colors2)
			}
		}
	}

	f.deriveEdgePasses(view, 0, f.w, 0, f.h, false, out1, out2)

	if out1 != nil && (f.State() == StateFinished || out1.IsImageOutput()) {
		tag := "Flushing output"
		if out1.IsImageOutput() {
			tag = "Saving image files"
		}
		f.progress.Infof("film: %s", tag)
		f.withProgressTag(tag, func() { out1.Flush(view, f.passes) })
	}
	if out2 != nil && out2.IsImageOutput() {
		f.withProgressTag("Saving image files", func() { out2.Flush(view, f.passes) })
	}

	if f.State() == StateFinished && !f.out.IsPreview() && f.checkpointing() {
		if f.imageOutputSink() != nil {
			if err := f.Save(); err != nil {
				f.progress.Warnf("film: save failed: %v", err)
			}
		}
	}
}

func (f *Film) withProgressTag(tag string, fn func()) {
	f.progress.SetTag(tag)
	fn()
	f.progress.SetTag("")
}
