package film

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(testOptions(0, 4), NewPassSet(nil, nil), newCaptureSink()); err == nil {
		t.Error("New accepted zero width")
	}
	if _, err := New(testOptions(4, 4), NewPassSet(nil, nil), nil); err == nil {
		t.Error("New accepted nil sink")
	}
	if _, err := New(testOptions(4, 4), nil, newCaptureSink()); err == nil {
		t.Error("New accepted nil pass set")
	}
}

func TestPassSetBeautyFirst(t *testing.T) {
	ps := NewPassSet([]IntPassType{PassZDepthNorm}, nil)
	if ps.ExtType(0) != PassCombined {
		t.Errorf("pass 0 = %v, want combined", ps.ExtType(0))
	}
	if ps.ExtPasses() != 2 {
		t.Errorf("ExtPasses = %d, want 2", ps.ExtPasses())
	}

	ps = NewPassSet([]IntPassType{PassCombined, PassAASamples}, []IntPassType{PassNormalGeom})
	if ps.ExtPasses() != 2 || ps.AuxPasses() != 1 {
		t.Errorf("sizes = %d/%d, want 2/1", ps.ExtPasses(), ps.AuxPasses())
	}
	if ps.ExtIndex(PassAASamples) != 1 {
		t.Errorf("ExtIndex(AASamples) = %d, want 1", ps.ExtIndex(PassAASamples))
	}
	if ps.AuxIndex(PassNormalGeom) != 0 {
		t.Errorf("AuxIndex(NormalGeom) = %d, want 0", ps.AuxIndex(PassNormalGeom))
	}
	if ps.ExtIndex(PassToon) != -1 {
		t.Error("ExtIndex of absent pass not -1")
	}
}

func TestLifecycleStates(t *testing.T) {
	f := newTestFilm(t, 8, 8, nil)
	if f.State() != StateIdle {
		t.Errorf("fresh film state = %v, want idle", f.State())
	}
	f.Init(2)
	if f.State() != StateRunning {
		t.Errorf("state after Init = %v, want running", f.State())
	}
	f.Finish()
	if f.State() != StateFinished {
		t.Errorf("state after Finish = %v, want finished", f.State())
	}

	f.Init(2)
	f.Abort()
	if f.State() != StateAborted {
		t.Errorf("state after Abort = %v, want aborted", f.State())
	}
	f.Finish()
	if f.State() != StateAborted {
		t.Error("Finish overrode the aborted state")
	}
}

func TestRenderLoopExportsEveryPixelOnce(t *testing.T) {
	f, sink := newTestFilmSink(t, 48, 48, nil)
	f.opts.TileSize = 16
	f.Init(1)

	var a TileArea
	tiles := 0
	for f.NextArea(0, &a) {
		tiles++
		f.FinishArea(0, a)
	}
	if tiles != 9 {
		t.Errorf("pulled %d tiles, want 9", tiles)
	}
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			if n := sink.putCount[[2]int{x, y}]; n != 1 {
				t.Fatalf("pixel (%d,%d) exported %d times, want 1", x, y, n)
			}
		}
	}
}

func TestAbortPropagation(t *testing.T) {
	f, sink := newTestFilmSink(t, 8, 8, nil)
	f.Init(1)
	sink.refuseAll = true

	var a TileArea
	if !f.NextArea(0, &a) {
		t.Fatal("no first tile")
	}
	// The sink refuses the first pixel; FinishArea still completes.
	f.FinishArea(0, a)

	if !f.Aborted() {
		t.Fatal("refused pixel did not abort the render")
	}
	if f.NextArea(0, &a) {
		t.Error("NextArea handed out a tile after abort")
	}
	if f.State() != StateAborted {
		t.Errorf("state = %v, want aborted", f.State())
	}
}

func TestIndexPassCeilExport(t *testing.T) {
	f, sink := newTestFilmSink(t, 2, 2, []IntPassType{PassObjIndexAbs})
	f.Init(1)

	cp := &ColorPasses{}
	cp.Set(PassCombined, RGBA{1, 1, 1, 1})
	for _, v := range []float32{1.7, 1.7, 2.0, 2.0} {
		cp.Set(PassObjIndexAbs, RGBA{v, v, v, 1})
		f.AddSample(cp, 0, 0, 0.5, 0.5, 0)
	}

	var a TileArea
	for f.NextArea(0, &a) {
		f.FinishArea(0, a)
	}

	// Mean 1.85 rounds up to 2 to reverse anti-aliasing blending.
	got := sink.at(0, 0)
	if got[1].R != 2 {
		t.Errorf("index pass export = %v, want 2", got[1].R)
	}
}

func TestAASamplesExportsWeightAsColor(t *testing.T) {
	f, sink := newTestFilmSink(t, 2, 2, []IntPassType{PassAASamples})
	f.Init(1)

	f.AddSample(beautySample(RGBA{1, 1, 1, 1}), 0, 0, 0.5, 0.5, 0.5)
	f.AddSample(beautySample(RGBA{1, 1, 1, 1}), 0, 0, 0.5, 0.5, 0.5)

	var a TileArea
	for f.NextArea(0, &a) {
		f.FinishArea(0, a)
	}

	got := sink.at(0, 0)
	if math.Abs(float64(got[1].R-1.0)) > 1e-6 {
		t.Errorf("AA samples export = %v, want accumulated weight 1.0", got[1].R)
	}
}

func TestFlushDensityBlend(t *testing.T) {
	opts := testOptions(2, 2)
	opts.EstimateDensity = true
	sink := newCaptureSink()
	f, err := New(opts, NewPassSet(nil, nil), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.Init(1)

	// density (0,0) accumulates 0.1 over two samples; W*H/num = 4/2 = 2.
	f.AddDensitySample(RGB{0.05, 0, 0}, 0, 0, 0.5, 0.5)
	f.AddDensitySample(RGB{0.05, 0, 0}, 0, 0, 0.5, 0.5)

	f.Flush(0, FlushAll, nil)

	got := sink.at(0, 0)
	if math.Abs(float64(got[0].R-0.2)) > 1e-6 {
		t.Errorf("density-blended beauty = %v, want 0.2", got[0].R)
	}

	// Without the density flag the blend is absent.
	f.Flush(0, FlushImage, nil)
	got = sink.at(0, 0)
	if got[0].R != 0 {
		t.Errorf("beauty without density flag = %v, want 0", got[0].R)
	}
}

func TestFlushAfterAbort(t *testing.T) {
	f, sink := newTestFilmSink(t, 4, 4, nil)
	f.Init(1)
	f.AddSample(beautySample(RGBA{1, 0, 0, 1}), 1, 1, 0.5, 0.5, 0)
	f.Abort()

	// IF_ALL flush remains available after abort.
	f.Flush(0, FlushAll, nil)
	if got := sink.at(1, 1); len(got) == 0 || got[0].R != 1 {
		t.Errorf("flush after abort exported %v, want red pixel", got)
	}
}

func TestFlushSecondaryOutput(t *testing.T) {
	f, _ := newTestFilmSink(t, 2, 2, nil)
	second := newCaptureSink()
	f.SetSecondaryOutput(second, SinkEncoding{ColorSpace: ColorSpaceRawGamma, Gamma: 2})
	f.Init(1)
	f.AddSample(beautySample(RGBA{0.25, 0, 0, 1}), 0, 0, 0.5, 0.5, 0)

	f.Flush(0, FlushAll, nil)

	got := second.at(0, 0)
	if len(got) == 0 {
		t.Fatal("secondary sink saw nothing")
	}
	// Gamma 2 encoding: sqrt(0.25) = 0.5.
	if math.Abs(float64(got[0].R-0.5)) > 1e-5 {
		t.Errorf("secondary export = %v, want 0.5", got[0].R)
	}
}

func TestExportClampsAlphaAndNegatives(t *testing.T) {
	f, sink := newTestFilmSink(t, 2, 2, nil)
	f.Init(1)

	*f.Image(0).Ref(0, 0) = WeightedPixel{Col: RGBA{-1, 0.5, 0, 3}, Weight: 1}

	var a TileArea
	for f.NextArea(0, &a) {
		f.FinishArea(0, a)
	}
	got := sink.at(0, 0)
	if got[0].R != 0 {
		t.Errorf("negative channel exported as %v, want 0", got[0].R)
	}
	if got[0].A != 1 {
		t.Errorf("alpha exported as %v, want clamped 1", got[0].A)
	}
}

// fakeClock advances only when told to, making time-interval autosaves
// deterministic.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestAutosavePassInterval(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(4, 4)
	opts.FilmBasePath = filepath.Join(dir, "scene")
	opts.FilmFileMode = FilmFileSave
	opts.FilmAutosave = AutosaveInterval{Kind: AutosavePass, Passes: 2}

	sink := newCaptureSink()
	sink.imageOutput = true
	f, err := New(opts, NewPassSet(nil, nil), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.Init(4)

	f.NextPass(0, false, "ti", false)
	if _, err := os.Stat(f.FilmPath()); !os.IsNotExist(err) {
		t.Error("film saved before the pass interval elapsed")
	}
	f.NextPass(0, false, "ti", false)
	if _, err := os.Stat(f.FilmPath()); err != nil {
		t.Errorf("film not saved after the pass interval: %v", err)
	}
}

func TestAutosaveTimeInterval(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(8, 8)
	opts.TileSize = 4 // 2x2 tiles, so one pass hands out more than one
	opts.FilmBasePath = filepath.Join(dir, "scene")
	opts.FilmFileMode = FilmFileSave
	opts.FilmAutosave = AutosaveInterval{Kind: AutosaveTime, Seconds: 60}

	sink := newCaptureSink()
	sink.imageOutput = true
	f, err := New(opts, NewPassSet(nil, nil), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f.SetClock(clock)
	f.Init(1)

	var a TileArea
	if !f.NextArea(0, &a) {
		t.Fatal("no tile")
	}
	f.FinishArea(0, a)
	if _, err := os.Stat(f.FilmPath()); !os.IsNotExist(err) {
		t.Error("film saved before the time interval elapsed")
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if !f.NextArea(0, &a) {
		t.Fatal("no second tile")
	}
	f.FinishArea(0, a)
	if _, err := os.Stat(f.FilmPath()); err != nil {
		t.Errorf("film not saved after the time interval: %v", err)
	}
}

func TestPreviewSkipsCheckpointing(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(4, 4)
	opts.FilmBasePath = filepath.Join(dir, "scene")
	opts.FilmFileMode = FilmFileLoadSave

	// Seed a sibling film that a non-preview render would merge.
	src := buildFilm(t, persistOptions(dir, FilmFormatBinary), 0.25)
	if err := src.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sink := newCaptureSink()
	sink.preview = true
	f, err := New(opts, NewPassSet(nil, nil), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.Init(1)
	if f.Resumed() {
		t.Error("preview render merged checkpoint files")
	}
}
