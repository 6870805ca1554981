package film

import "errors"

// Options validation errors
var (
	ErrNoPasses      = errors.New("film: pass set must contain at least the combined pass")
	ErrBadDimensions = errors.New("film: width and height must be positive")
)

// DarkDetection selects how the AA threshold adapts to dark regions.
type DarkDetection int

const (
	// DarkDetectionNone applies the configured threshold uniformly.
	DarkDetectionNone DarkDetection = iota
	// DarkDetectionLinear scales the threshold linearly with brightness.
	DarkDetectionLinear
	// DarkDetectionCurve uses a piecewise-linear brightness curve tuned
	// for perceptual noise visibility.
	DarkDetectionCurve
)

// FilmFileMode controls checkpointing of the film itself.
type FilmFileMode int

const (
	FilmFileNone FilmFileMode = iota
	FilmFileSave
	FilmFileLoadSave
)

// FilmFileFormat selects the on-disk form of saved films.
type FilmFileFormat int

const (
	FilmFormatBinary FilmFileFormat = iota
	FilmFormatText
	// FilmFormatXML is a debug-only form; it is always recognized on
	// load but only written when explicitly selected.
	FilmFormatXML
)

// AutosaveKind selects how an autosave interval is measured.
type AutosaveKind int

const (
	AutosaveNone AutosaveKind = iota
	AutosavePass
	AutosaveTime
)

// AutosaveInterval describes one autosave cadence.
type AutosaveInterval struct {
	Kind    AutosaveKind
	Passes  int     // used when Kind == AutosavePass
	Seconds float64 // used when Kind == AutosaveTime
}

// SinkEncoding is the per-sink export encoding.
type SinkEncoding struct {
	ColorSpace   ColorSpace
	Gamma        float32
	PremultAlpha bool
}

// AANoiseParams tunes the adaptive anti-aliasing analysis.
type AANoiseParams struct {
	Threshold            float32
	DarkDetection        DarkDetection
	DarkThresholdFactor  float32
	VarianceEdgeSize     int
	VariancePixels       int
	ClampSamples         float32
	DetectColorNoise     bool
	BackgroundResampling bool
}

// EdgeParams tunes the derived edge and toon passes.
type EdgeParams struct {
	FacesThickness  int
	FacesThreshold  float32
	FacesSmoothness float32

	ObjectThickness  int
	ObjectThreshold  float32
	ObjectSmoothness float32

	ToonPreSmooth    float32
	ToonQuantization float32
	ToonPostSmooth   float32
	ToonEdgeColor    RGB
}

// Options configures a film. Width and Height must be positive; apart from
// them the zero value is usable (tile size, thread count and filter size
// fall back to defaults). DefaultOptions fills in the conventional tunables.
type Options struct {
	Width, Height  int
	XStart, YStart int

	Filter     FilterType
	FilterSize float64 // nominal size in pixels before per-filter scaling

	TileSize   int
	TilesOrder TilesOrder
	NumThreads int

	Primary   SinkEncoding
	Secondary SinkEncoding

	AA AANoiseParams

	EstimateDensity bool

	FilmFileMode   FilmFileMode
	FilmFileFormat FilmFileFormat
	FilmBasePath   string // output base path; ".film" names derive from it
	ComputerNode   int    // folded into film file names for per-host merge

	ImagesAutosave AutosaveInterval
	FilmAutosave   AutosaveInterval

	Interactive    bool
	ShowSampleMask bool

	Edge EdgeParams
}

// DefaultOptions returns the conventional film configuration.
func DefaultOptions(w, h int) Options {
	return Options{
		Width:      w,
		Height:     h,
		Filter:     FilterBox,
		FilterSize: 1.5,
		TileSize:   32,
		TilesOrder: TilesCentre,
		NumThreads: 1,
		Primary:    SinkEncoding{ColorSpace: ColorSpaceSRGB, Gamma: 1},
		Secondary:  SinkEncoding{ColorSpace: ColorSpaceLinear, Gamma: 1},
		AA: AANoiseParams{
			VarianceEdgeSize: 10,
		},
		Edge: EdgeParams{
			FacesThickness:   1,
			FacesThreshold:   0.01,
			ObjectThickness:  2,
			ObjectThreshold:  0.3,
			ToonQuantization: 0.1,
			ToonEdgeColor:    RGB{},
		},
	}
}

func (o *Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return ErrBadDimensions
	}
	if o.TileSize <= 0 {
		o.TileSize = 32
	}
	if o.NumThreads < 1 {
		o.NumThreads = 1
	}
	if o.FilterSize <= 0 {
		o.FilterSize = 1.5
	}
	return nil
}
