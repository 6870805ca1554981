package film

// IntPassType identifies what a pass image holds. The set is closed: sinks
// and the persistence format route by these values.
type IntPassType int

const (
	// PassCombined is the beauty pass. It is always external pass 0.
	PassCombined IntPassType = iota
	PassNormalSmooth
	PassNormalGeom
	PassZDepthNorm
	PassObjIndexAbs
	PassObjIndexAutoAbs
	PassMatIndexAbs
	PassMatIndexAutoAbs
	PassAASamples
	PassDebugSamplingFactor
	PassDebugFacesEdges
	PassDebugObjectsEdges
	PassToon

	numPassTypes
)

var passTypeNames = [numPassTypes]string{
	"combined",
	"normal-smooth",
	"normal-geom",
	"z-depth-norm",
	"obj-index-abs",
	"obj-index-auto-abs",
	"mat-index-abs",
	"mat-index-auto-abs",
	"aa-samples",
	"debug-sampling-factor",
	"debug-faces-edges",
	"debug-objects-edges",
	"toon",
}

// String returns the canonical pass name.
func (t IntPassType) String() string {
	if t < 0 || t >= numPassTypes {
		return "unknown"
	}
	return passTypeNames[t]
}

// PassSet maps external pass indices (the order pixels are pushed to
// sinks) and auxiliary internal pass indices to pass types. The mapping is
// fixed for the lifetime of a film. External index 0 must be PassCombined.
type PassSet struct {
	ext []IntPassType
	aux []IntPassType
}

// NewPassSet builds a pass set from external and auxiliary pass lists.
// If ext is empty or does not start with the combined pass, the combined
// pass is prepended.
func NewPassSet(ext, aux []IntPassType) *PassSet {
	if len(ext) == 0 || ext[0] != PassCombined {
		ext = append([]IntPassType{PassCombined}, ext...)
	} else {
		ext = append([]IntPassType(nil), ext...)
	}
	return &PassSet{ext: ext, aux: append([]IntPassType(nil), aux...)}
}

// ExtPasses returns the number of external passes.
func (ps *PassSet) ExtPasses() int { return len(ps.ext) }

// AuxPasses returns the number of auxiliary passes.
func (ps *PassSet) AuxPasses() int { return len(ps.aux) }

// ExtType returns the pass type of external pass idx.
func (ps *PassSet) ExtType(idx int) IntPassType { return ps.ext[idx] }

// AuxType returns the pass type of auxiliary pass idx.
func (ps *PassSet) AuxType(idx int) IntPassType { return ps.aux[idx] }

// ExtIndex returns the external index holding type t, or -1. External
// pass 0 is never returned for non-combined lookups, matching the rule
// that derived passes read from dedicated pass images.
func (ps *PassSet) ExtIndex(t IntPassType) int {
	if t == PassCombined {
		return 0
	}
	for i := 1; i < len(ps.ext); i++ {
		if ps.ext[i] == t {
			return i
		}
	}
	return -1
}

// AuxIndex returns the auxiliary index holding type t, or -1.
func (ps *PassSet) AuxIndex(t IntPassType) int {
	for i, pt := range ps.aux {
		if pt == t {
			return i
		}
	}
	return -1
}

// ColorPasses carries one sample color per pass type, populated by the
// integrator before each AddSample call.
type ColorPasses struct {
	col [numPassTypes]RGBA
}

// Set stores the sample color for pass type t.
func (cp *ColorPasses) Set(t IntPassType, c RGBA) {
	cp.col[t] = c
}

// Get returns the sample color for pass type t.
func (cp *ColorPasses) Get(t IntPassType) RGBA {
	return cp.col[t]
}
