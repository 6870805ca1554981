//go:build !filmnoimaging

package film

import (
	"math"
	"testing"
)

// setAux writes a normalized value with weight 1 into an auxiliary pass.
func setAux(f *Film, auxIdx, x, y int, c RGBA) {
	*f.AuxImage(auxIdx).Ref(x, y) = WeightedPixel{Col: c, Weight: 1}
}

func newEdgeFilm(t *testing.T, ext []IntPassType, aux []IntPassType) (*Film, *captureSink) {
	t.Helper()
	sink := newCaptureSink()
	f, err := New(testOptions(16, 16), NewPassSet(ext, aux), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.Init(1)
	return f, sink
}

func TestFacesEdgesDetectNormalStep(t *testing.T) {
	f, sink := newEdgeFilm(t,
		[]IntPassType{PassDebugFacesEdges},
		[]IntPassType{PassNormalGeom, PassZDepthNorm})

	// Two flat faces meeting in a vertical crease at x=8; uniform depth.
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			n := RGBA{0, 0, 1, 1}
			if x >= 8 {
				n = RGBA{1, 0, 0, 1}
			}
			setAux(f, 0, x, y, n)
			setAux(f, 1, x, y, RGBA{0.5, 0.5, 0.5, 0.5})
		}
	}

	f.deriveEdgePasses(0, 0, 16, 0, 16, false, sink, nil)

	if e := sink.passPixels[[3]int{7, 8, 1}]; e.R <= 0 {
		t.Errorf("no edge at the crease, got %v", e.R)
	}
	if e := sink.passPixels[[3]int{2, 8, 1}]; e.R != 0 {
		t.Errorf("edge on a flat face, got %v", e.R)
	}
}

func TestFacesEdgesRequireSourcePasses(t *testing.T) {
	// Without the normal pass the derivation is silently skipped.
	f, sink := newEdgeFilm(t,
		[]IntPassType{PassDebugFacesEdges},
		[]IntPassType{PassZDepthNorm})

	f.deriveEdgePasses(0, 0, 16, 0, 16, false, sink, nil)
	if len(sink.passPixels) != 0 {
		t.Errorf("derived %d pixels without source passes", len(sink.passPixels))
	}
}

func TestToonPassQuantizesBeauty(t *testing.T) {
	f, sink := newEdgeFilm(t,
		[]IntPassType{PassDebugObjectsEdges, PassToon},
		[]IntPassType{PassNormalSmooth, PassZDepthNorm})
	f.opts.Edge.ToonQuantization = 0.25

	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			setBeauty(f, x, y, 0.6)
			setAux(f, 0, x, y, RGBA{0, 0, 1, 1})
			setAux(f, 1, x, y, RGBA{0.5, 0.5, 0.5, 0.5})
		}
	}

	f.deriveEdgePasses(0, 0, 16, 0, 16, false, sink, nil)

	// Uniform scene: no object edges anywhere.
	if e := sink.passPixels[[3]int{8, 8, 1}]; e.R != 0 {
		t.Errorf("object edge on a uniform scene, got %v", e.R)
	}

	// Toon output present and value-quantized: 0.6 snaps towards 0.5.
	toon := sink.passPixels[[3]int{8, 8, 2}]
	if toon.A != 1 {
		t.Fatalf("toon pixel missing, got %+v", toon)
	}
	if math.Abs(float64(toon.R-0.5)) > 0.05 {
		t.Errorf("toon value = %v, want quantized towards 0.5", toon.R)
	}
}
