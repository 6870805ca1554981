package film

import "time"

// SinkWriter receives exported pixels. The film writes to one or two sinks
// per pass; implementations encode to files, preview windows or network
// targets. The film never encodes image formats itself.
type SinkWriter interface {
	// PutPixel delivers the export colors of one pixel, one entry per
	// external pass. Returning false aborts the render.
	PutPixel(view, x, y int, ps *PassSet, colors []RGBA) bool

	// PutPassPixel delivers a single derived pass value for one pixel.
	PutPassPixel(view, x, y int, ps *PassSet, passIdx int, color RGBA) bool

	// HighlightArea optionally marks a tile as in progress.
	HighlightArea(view, x0, y0, x1, y1 int)

	// FlushArea commits a finished tile.
	FlushArea(view, x0, y0, x1, y1 int, ps *PassSet)

	// Flush commits the whole frame.
	Flush(view int, ps *PassSet)

	// IsImageOutput reports whether the sink persists image files.
	IsImageOutput() bool

	// IsPreview reports whether the sink is a preview surface. Preview
	// renders skip film load/save and autosaving.
	IsPreview() bool

	// DenoiseParams returns a descriptive string of the sink's denoise
	// settings, for diagnostics.
	DenoiseParams() string
}

// ProgressSink receives render progress. The film never touches process
// globals; progress, status tags and warnings all flow through here.
type ProgressSink interface {
	Init(totalPixels int)
	Update(donePixels int)
	Done()
	SetTag(tag string)
	Percent() float64

	// Warnf reports a recoverable problem (IO failure, discarded film
	// load). The film always continues after a warning.
	Warnf(format string, args ...any)

	// Infof reports normal lifecycle events.
	Infof(format string, args ...any)
}

// Clock supplies time for the autosave interval timers. Injected so long
// renders can be tested without waiting.
type Clock interface {
	Now() time.Time
}

// NopProgress is a ProgressSink that discards everything.
type NopProgress struct{}

func (NopProgress) Init(int)             {}
func (NopProgress) Update(int)           {}
func (NopProgress) Done()                {}
func (NopProgress) SetTag(string)        {}
func (NopProgress) Percent() float64     { return 0 }
func (NopProgress) Warnf(string, ...any) {}
func (NopProgress) Infof(string, ...any) {}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DiscardSink is a SinkWriter that accepts and drops everything. Useful
// for offline film manipulation where no image output is wanted.
type DiscardSink struct{}

func (DiscardSink) PutPixel(int, int, int, *PassSet, []RGBA) bool         { return true }
func (DiscardSink) PutPassPixel(int, int, int, *PassSet, int, RGBA) bool  { return true }
func (DiscardSink) HighlightArea(int, int, int, int, int)                 {}
func (DiscardSink) FlushArea(int, int, int, int, int, *PassSet)           {}
func (DiscardSink) Flush(int, *PassSet)                                   {}
func (DiscardSink) IsImageOutput() bool                                   { return false }
func (DiscardSink) IsPreview() bool                                       { return false }
func (DiscardSink) DenoiseParams() string                                 { return "" }
