//go:build filmnoimaging

package film

// Built without the image-processing backend: the derived edge and toon
// passes emit zero instead of failing.

func (f *Film) deriveEdgePasses(view, x0, x1, y0, y1 int, drawBorder bool, out1, out2 SinkWriter) {
	for idx := 1; idx < len(f.images); idx++ {
		switch f.passes.ExtType(idx) {
		case PassDebugFacesEdges, PassDebugObjectsEdges, PassToon:
			for j := y0; j < y1; j++ {
				for i := x0; i < x1; i++ {
					if out1 != nil {
						out1.PutPassPixel(view, i, j, f.passes, idx, RGBA{})
					}
					if out2 != nil {
						out2.PutPassPixel(view, i, j, f.passes, idx, RGBA{})
					}
				}
			}
		}
	}
}
