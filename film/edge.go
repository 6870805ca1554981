//go:build !filmnoimaging

package film

import (
	"image"
	"image/color"

	"github.com/disintegration/gift"
)

// Edge and toon derivation uses gift as the image-processing backend.
// Building with the filmnoimaging tag removes the dependency and makes
// these passes emit zero.

// floatPlane is a single-channel float image bridged to image.Gray16 for
// the gift filters. Channel values are expected in [0, 1]; 16-bit
// quantization is plenty for binary edge maps.
type floatPlane struct {
	w, h int
	v    []float32
}

func newFloatPlane(w, h int) *floatPlane {
	return &floatPlane{w: w, h: h, v: make([]float32, w*h)}
}

func (p *floatPlane) set(x, y int, v float32) { p.v[y*p.w+x] = v }
func (p *floatPlane) at(x, y int) float32     { return p.v[y*p.w+x] }

func (p *floatPlane) toGray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.w, p.h))
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			v := p.at(x, y)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v*65535 + 0.5)})
		}
	}
	return img
}

func (p *floatPlane) fromGray16(img *image.Gray16) {
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			p.set(x, y, float32(img.Gray16At(x, y).Y)/65535)
		}
	}
}

func (p *floatPlane) apply(filters ...gift.Filter) {
	src := p.toGray16()
	dst := image.NewGray16(src.Bounds())
	gift.New(filters...).Draw(dst, src)
	p.fromGray16(dst)
}

// detectEdges combines the component planes into a binary edge map stored
// in planes[0]: per-plane discrete Laplacian, channel-wise max, threshold,
// optional thickness dilation (mean filter re-thresholded at 0.1) and
// optional Gaussian smoothing.
func detectEdges(planes []*floatPlane, threshold float32, thickness int, smoothness float32) {
	laplacian := gift.Convolution(
		[]float32{0, 1, 0, 1, -4, 1, 0, 1, 0},
		false, false, true, 0,
	)

	for i, p := range planes {
		p.apply(laplacian)
		if i > 0 {
			for k, v := range p.v {
				if v > planes[0].v[k] {
					planes[0].v[k] = v
				}
			}
		}
	}

	edge := planes[0]
	for k, v := range edge.v {
		if v > threshold {
			edge.v[k] = 1
		} else {
			edge.v[k] = 0
		}
	}

	if thickness > 1 {
		k := thickness
		if k%2 == 0 {
			k++ // gift mean kernels are odd-sized
		}
		edge.apply(gift.Mean(k, false))
		for i, v := range edge.v {
			if v > 0.1 {
				edge.v[i] = 1
			} else {
				edge.v[i] = 0
			}
		}
	}

	if smoothness > 0 {
		edge.apply(gift.GaussianBlur(smoothness))
	}
}

// normalDepthPlanes assembles the 4-channel (Nx, Ny, Nz, depth) component
// image within the given region; outside the region the planes stay zero.
func (f *Film) normalDepthPlanes(normal, depth *PixelImage, x0, x1, y0, y1 int) []*floatPlane {
	planes := make([]*floatPlane, 4)
	for i := range planes {
		planes[i] = newFloatPlane(f.w, f.h)
	}
	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			n := normal.At(i, j).Normalized()
			z := depth.At(i, j).Normalized().A
			planes[0].set(i, j, n.R)
			planes[1].set(i, j, n.G)
			planes[2].set(i, j, n.B)
			planes[3].set(i, j, z)
		}
	}
	return planes
}

func borderPixel(i, j, x0, x1, y0, y1 int) bool {
	return i <= x0+1 || j <= y0+1 || i >= x1-2 || j >= y1-2
}

var borderColor = RGBA{0.5, 0, 0, 1}

// deriveEdgePasses regenerates the derived faces-edges, objects-edges and
// toon passes for the region [x0, x1) x [y0, y1) (image-local) and pushes
// them to the sinks. drawBorder marks tile borders during progressive
// display.
func (f *Film) deriveEdgePasses(view, x0, x1, y0, y1 int, drawBorder bool, out1, out2 SinkWriter) {
	for idx := 1; idx < len(f.images); idx++ {
		switch f.passes.ExtType(idx) {
		case PassDebugFacesEdges:
			f.deriveFacesEdges(view, idx, x0, x1, y0, y1, drawBorder, out1, out2)
		case PassDebugObjectsEdges, PassToon:
			f.deriveToonAndObjectEdges(view, idx, x0, x1, y0, y1, drawBorder, out1, out2)
		}
	}
}

// deriveFacesEdges builds the faces-edges pass from the geometric normal
// and normalized depth passes.
func (f *Film) deriveFacesEdges(view, passIdx, x0, x1, y0, y1 int, drawBorder bool, out1, out2 SinkWriter) {
	normal := f.imageForType(PassNormalGeom)
	depth := f.imageForType(PassZDepthNorm)
	if normal == nil || depth == nil {
		return
	}

	planes := f.normalDepthPlanes(normal, depth, x0, x1, y0, y1)
	detectEdges(planes, f.opts.Edge.FacesThreshold, f.opts.Edge.FacesThickness, f.opts.Edge.FacesSmoothness)

	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			e := planes[0].at(i, j)
			col := RGBA{e, e, e, 1}
			if drawBorder && borderPixel(i, j, x0, x1, y0, y1) {
				col = borderColor
			}
			if out1 != nil {
				out1.PutPassPixel(view, i, j, f.passes, passIdx, col)
			}
			if out2 != nil {
				out2.PutPassPixel(view, i, j, f.passes, passIdx, col)
			}
		}
	}
}

// deriveToonAndObjectEdges builds the objects-edges pass from the smooth
// normal and depth passes, and the toon pass by quantizing a pre-smoothed
// beauty image in HSV and blending the edge color back in.
func (f *Film) deriveToonAndObjectEdges(view, passIdx, x0, x1, y0, y1 int, drawBorder bool, out1, out2 SinkWriter) {
	normal := f.imageForType(PassNormalSmooth)
	depth := f.imageForType(PassZDepthNorm)
	if normal == nil || depth == nil {
		return
	}
	e := &f.opts.Edge

	beauty := image.NewRGBA64(image.Rect(0, 0, f.w, f.h))
	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			c := f.images[0].At(i, j).Normalized().ClampRGB0()
			beauty.SetRGBA64(i, j, color.RGBA64{
				R: quant16(c.R), G: quant16(c.G), B: quant16(c.B), A: 0xffff,
			})
		}
	}

	smoothed := image.NewRGBA64(beauty.Bounds())
	gift.New(gift.GaussianBlur(e.ToonPreSmooth)).Draw(smoothed, beauty)

	if e.ToonQuantization > 0 {
		q := e.ToonQuantization
		for j := y0; j < y1; j++ {
			for i := x0; i < x1; i++ {
				c := smoothed.RGBA64At(i, j)
				h, s, v := RGBToHSV(float32(c.R)/65535, float32(c.G)/65535, float32(c.B)/65535)
				h = quantize(h, q)
				s = quantize(s, q)
				v = quantize(v, q)
				r, g, b := HSVToRGB(h, s, v)
				smoothed.SetRGBA64(i, j, color.RGBA64{R: quant16(r), G: quant16(g), B: quant16(b), A: 0xffff})
			}
		}
		post := image.NewRGBA64(smoothed.Bounds())
		gift.New(gift.GaussianBlur(e.ToonPostSmooth)).Draw(post, smoothed)
		smoothed = post
	}

	planes := f.normalDepthPlanes(normal, depth, x0, x1, y0, y1)
	detectEdges(planes, e.ObjectThreshold, e.ObjectThickness, e.ObjectSmoothness)

	toonIdx := -1
	for idx := 1; idx < len(f.images); idx++ {
		if f.passes.ExtType(idx) == PassToon {
			toonIdx = idx
			break
		}
	}

	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			edgeValue := planes[0].at(i, j)
			colEdge := RGBA{edgeValue, edgeValue, edgeValue, 1}
			if drawBorder && borderPixel(i, j, x0, x1, y0, y1) {
				colEdge = borderColor
			}
			if out1 != nil {
				out1.PutPassPixel(view, i, j, f.passes, passIdx, colEdge)
			}
			if out2 != nil {
				out2.PutPassPixel(view, i, j, f.passes, passIdx, colEdge)
			}

			if toonIdx < 0 {
				continue
			}
			sc := smoothed.RGBA64At(i, j)
			toon := RGBA{
				R: blend(float32(sc.R)/65535, e.ToonEdgeColor.R, edgeValue),
				G: blend(float32(sc.G)/65535, e.ToonEdgeColor.G, edgeValue),
				B: blend(float32(sc.B)/65535, e.ToonEdgeColor.B, edgeValue),
				A: 1,
			}
			if drawBorder && borderPixel(i, j, x0, x1, y0, y1) {
				toon = borderColor
			}
			if out1 != nil {
				out1.PutPassPixel(view, i, j, f.passes, toonIdx, toon.Encode(f.opts.Primary.ColorSpace, f.opts.Primary.Gamma))
			}
			if out2 != nil {
				out2.PutPassPixel(view, i, j, f.passes, toonIdx, toon.Encode(f.opts.Secondary.ColorSpace, f.opts.Secondary.Gamma))
			}
		}
	}
}

func quant16(v float32) uint16 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 0xffff
	}
	return uint16(v*65535 + 0.5)
}

func quantize(v, q float32) float32 {
	return float32(int(v/q+0.5)) * q
}

func blend(bg, fg, alpha float32) float32 {
	return bg*(1-alpha) + fg*alpha
}
