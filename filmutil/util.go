// Package filmutil provides higher-level operations for working with film
// checkpoint files: summaries, standalone merging and beauty-pass preview
// extraction.
//
// Example usage:
//
//	info, _ := filmutil.GetInfo("scene - node 0000.film")
//	fmt.Printf("%dx%d, %d passes\n", info.Check.W, info.Check.H, info.Check.NumPasses)
package filmutil

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"

	"github.com/mrjoshuak/go-renderfilm/film"
)

// ===========================================
// File Information
// ===========================================

// Info summarizes a film checkpoint file.
type Info struct {
	Path               string
	Format             string // "binary", "text" or "xml"
	Check              film.FilmCheckInfo
	NumAuxPasses       int
	SamplingOffset     uint64
	BaseSamplingOffset uint64
	FileSize           int64
}

// GetInfo decodes a checkpoint and returns its summary.
func GetInfo(path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	d, err := film.DecodeFilmFile(path)
	if err != nil {
		return nil, err
	}

	return &Info{
		Path:               path,
		Format:             detectFormat(path),
		Check:              d.Check,
		NumAuxPasses:       d.NumAuxPasses,
		SamplingOffset:     d.SamplingOffset,
		BaseSamplingOffset: d.BaseSamplingOffset,
		FileSize:           stat.Size(),
	}, nil
}

func detectFormat(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "unknown"
	}
	defer f.Close()
	var b [1]byte
	if _, err := f.Read(b[:]); err != nil {
		return "unknown"
	}
	switch {
	case b[0] < '0':
		return "binary"
	case b[0] == '<':
		return "xml"
	default:
		return "text"
	}
}

// ===========================================
// Standalone merging
// ===========================================

// scaffold builds an offline film matching the geometry of a decoded
// checkpoint, suitable as a merge target. Pass types are irrelevant for
// merging, so every pass maps to the combined type.
func scaffold(d *film.FilmData, format film.FilmFileFormat) (*film.Film, error) {
	opts := film.DefaultOptions(d.Check.W, d.Check.H)
	opts.XStart = d.Check.CX0
	opts.YStart = d.Check.CY0
	opts.FilmFileFormat = format

	ext := make([]film.IntPassType, d.Check.NumPasses)
	aux := make([]film.IntPassType, d.NumAuxPasses)
	for i := range ext {
		ext[i] = film.PassCombined
	}
	for i := range aux {
		aux[i] = film.PassCombined
	}

	f, err := film.New(opts, film.NewPassSet(ext, aux), film.DiscardSink{})
	if err != nil {
		return nil, err
	}
	f.Init(1)
	return f, nil
}

// mergePaths merges a list of checkpoints into an offline film. The first
// file fixes the geometry; files whose structure differs are skipped with
// an error in the returned slice.
func mergePaths(paths []string, format film.FilmFileFormat) (*film.Film, []error, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("filmutil: no input files")
	}

	first, err := film.DecodeFilmFile(paths[0])
	if err != nil {
		return nil, nil, err
	}
	f, err := scaffold(first, format)
	if err != nil {
		return nil, nil, err
	}

	var skipped []error
	for _, p := range paths {
		if mergeErr := f.LoadMerge(p); mergeErr != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", p, mergeErr))
		}
	}
	return f, skipped, nil
}

// MergeFolder merges every sibling checkpoint in dir sharing the given
// output base name and returns the combined film. Mismatched siblings are
// skipped with an error in the returned slice.
func MergeFolder(dir, base string, format film.FilmFileFormat) (*film.Film, []error, error) {
	paths, err := film.SiblingFilms(filepath.Join(dir, base))
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("filmutil: no %q checkpoints in %s", base, dir)
	}
	return mergePaths(paths, format)
}

// MergeFiles merges sibling checkpoints into one and writes the result to
// out in the given format.
func MergeFiles(paths []string, out string, format film.FilmFileFormat) (skipped []error, err error) {
	f, skipped, err := mergePaths(paths, format)
	if err != nil {
		return skipped, err
	}
	if err := f.SaveTo(out); err != nil {
		return skipped, err
	}
	return skipped, nil
}

// ===========================================
// Previews
// ===========================================

// Preview renders the normalized beauty pass of a decoded checkpoint into
// an sRGB-encoded image, scaled down to fit maxDim on its longest side.
func Preview(d *film.FilmData, maxDim int) (image.Image, error) {
	if len(d.Passes) == 0 {
		return nil, fmt.Errorf("filmutil: checkpoint has no passes")
	}

	w, h := d.Check.W, d.Check.H
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	beauty := d.Passes[0]
	film.ParallelFor(h, func(y int) {
		for x := 0; x < w; x++ {
			c := beauty[y*w+x].Normalized().ClampRGB0().Encode(film.ColorSpaceSRGB, 1).ClampAlpha()
			img.SetNRGBA(x, y, color.NRGBA{
				R: to8(c.R), G: to8(c.G), B: to8(c.B), A: to8(c.A),
			})
		}
	})

	if maxDim > 0 && (w > maxDim || h > maxDim) {
		return resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3), nil
	}
	return img, nil
}

func to8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
