package raster

// Aligner resamples every grid in a run onto one canonical pixel grid so
// that later per-pixel arithmetic is valid. The first grid it sees fixes the
// canonical definition.
type Aligner struct {
	warper Warper
	def    *GridDef
}

// NewAligner creates an Aligner with no canonical grid yet.
func NewAligner(w Warper) *Aligner {
	return &Aligner{warper: w}
}

// Align returns g resampled onto the canonical grid. The first call adopts
// g's definition as canonical and returns g unchanged.
func (a *Aligner) Align(g *Grid) (*Grid, error) {
	if a.def == nil {
		def := g.GridDef
		a.def = &def
		return g, nil
	}
	if g.SameAs(*a.def) {
		return g, nil
	}
	return a.warper.WarpTo(g, *a.def)
}

// Def returns the canonical grid definition, if one has been adopted.
func (a *Aligner) Def() (GridDef, bool) {
	if a.def == nil {
		return GridDef{}, false
	}
	return *a.def, true
}
