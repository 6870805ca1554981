package film

import (
	"sync"
	"testing"
)

// captureSink records everything the film exports.
type captureSink struct {
	mu         sync.Mutex
	pixels     map[[2]int][]RGBA
	putCount   map[[2]int]int
	passPixels map[[3]int]RGBA

	refuseAll   bool
	imageOutput bool
	preview     bool
	flushes     int
	areaFlushes int
}

func newCaptureSink() *captureSink {
	return &captureSink{
		pixels:     make(map[[2]int][]RGBA),
		putCount:   make(map[[2]int]int),
		passPixels: make(map[[3]int]RGBA),
	}
}

func (s *captureSink) PutPixel(view, x, y int, ps *PassSet, colors []RGBA) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuseAll {
		return false
	}
	s.pixels[[2]int{x, y}] = append([]RGBA(nil), colors...)
	s.putCount[[2]int{x, y}]++
	return true
}

func (s *captureSink) PutPassPixel(view, x, y int, ps *PassSet, passIdx int, color RGBA) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passPixels[[3]int{x, y, passIdx}] = color
	return true
}

func (s *captureSink) HighlightArea(view, x0, y0, x1, y1 int) {}

func (s *captureSink) FlushArea(view, x0, y0, x1, y1 int, ps *PassSet) {
	s.mu.Lock()
	s.areaFlushes++
	s.mu.Unlock()
}

func (s *captureSink) Flush(view int, ps *PassSet) {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

func (s *captureSink) IsImageOutput() bool { return s.imageOutput }
func (s *captureSink) IsPreview() bool     { return s.preview }

func (s *captureSink) DenoiseParams() string { return "" }

// at returns the last exported colors for pixel (x, y).
func (s *captureSink) at(x, y int) []RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pixels[[2]int{x, y}]
}

// testOptions is a deterministic baseline: box filter covering a single
// pixel, linear export, no adaptive AA.
func testOptions(w, h int) Options {
	opts := DefaultOptions(w, h)
	opts.Filter = FilterBox
	opts.FilterSize = 1.0
	opts.TilesOrder = TilesLinear
	opts.Primary = SinkEncoding{ColorSpace: ColorSpaceLinear, Gamma: 1}
	return opts
}

// newTestFilm builds a beauty-only film over a capture sink.
func newTestFilm(t *testing.T, w, h int, ext []IntPassType) *Film {
	t.Helper()
	f, _ := newTestFilmSink(t, w, h, ext)
	return f
}

func newTestFilmSink(t *testing.T, w, h int, ext []IntPassType) (*Film, *captureSink) {
	t.Helper()
	sink := newCaptureSink()
	f, err := New(testOptions(w, h), NewPassSet(ext, nil), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, sink
}

// beautySample builds a ColorPasses with the same color on every pass.
func beautySample(c RGBA) *ColorPasses {
	cp := &ColorPasses{}
	for t := IntPassType(0); t < numPassTypes; t++ {
		cp.Set(t, c)
	}
	return cp
}
