package graph

import (
	"fmt"
	"strings"
)

// Context selects which Output input a program is compiled for.
type Context uint8

const (
	ContextSurface Context = iota
	ContextVolume
	ContextDisplacement
	ContextBump
	NumContexts
)

// Contexts lists every context in compilation order for reporting.
var Contexts = [...]Context{ContextSurface, ContextVolume, ContextDisplacement, ContextBump}

func (c Context) String() string {
	switch c {
	case ContextSurface:
		return "surface"
	case ContextVolume:
		return "volume"
	case ContextDisplacement:
		return "displacement"
	case ContextBump:
		return "bump"
	}
	return fmt.Sprintf("Context(%d)", c)
}

func ParseContext(s string) (Context, error) {
	for _, c := range Contexts {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown shading context %q", s)
}

// RootInput names the Output node input a context is rooted at.
func (c Context) RootInput() string {
	switch c {
	case ContextSurface:
		return "Surface"
	case ContextVolume:
		return "Volume"
	case ContextDisplacement:
		return "Displacement"
	case ContextBump:
		return "Normal"
	}
	return ""
}

// DisplacementMethod controls how the Displacement output is realised.
type DisplacementMethod uint8

const (
	DisplacementBump DisplacementMethod = iota
	DisplacementTrue
	DisplacementBoth
)

func (m DisplacementMethod) String() string {
	switch m {
	case DisplacementBump:
		return "bump"
	case DisplacementTrue:
		return "true"
	case DisplacementBoth:
		return "both"
	}
	return fmt.Sprintf("DisplacementMethod(%d)", m)
}

func ParseDisplacementMethod(s string) (DisplacementMethod, error) {
	switch strings.ToLower(s) {
	case "", "bump":
		return DisplacementBump, nil
	case "true":
		return DisplacementTrue, nil
	case "both":
		return DisplacementBoth, nil
	}
	return 0, fmt.Errorf("unknown displacement method %q", s)
}

// Caps is the set of capability flags derived from a compiled shader.
// Flags are only ever added during a compilation pass.
type Caps uint32

const (
	CapSurface Caps = 1 << iota
	CapSurfaceEmission
	CapSurfaceTransparent
	CapSurfaceRaytrace
	CapVolume
	CapDisplacement
	CapSurfaceBSSRDF
	CapBump
	CapBSSRDFBump
	CapSurfaceSpatialVarying
	CapVolumeSpatialVarying
	CapVolumeAttributeDependency
	CapIntegratorDependency
)

var capNames = []struct {
	c    Caps
	name string
}{
	{CapSurface, "surface"},
	{CapSurfaceEmission, "surface_emission"},
	{CapSurfaceTransparent, "surface_transparent"},
	{CapSurfaceRaytrace, "surface_raytrace"},
	{CapVolume, "volume"},
	{CapDisplacement, "displacement"},
	{CapSurfaceBSSRDF, "surface_bssrdf"},
	{CapBump, "bump"},
	{CapBSSRDFBump, "bssrdf_bump"},
	{CapSurfaceSpatialVarying, "surface_spatial_varying"},
	{CapVolumeSpatialVarying, "volume_spatial_varying"},
	{CapVolumeAttributeDependency, "volume_attribute_dependency"},
	{CapIntegratorDependency, "integrator_dependency"},
}

func (c Caps) Has(f Caps) bool { return c&f == f }

func (c *Caps) Set(f Caps) { *c |= f }

// Names lists the set flags in declaration order.
func (c Caps) Names() []string {
	out := make([]string, 0, len(capNames))
	for _, cn := range capNames {
		if c.Has(cn.c) {
			out = append(out, cn.name)
		}
	}
	return out
}

func (c Caps) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), "|")
}

// HasBump reports whether a shader derives a bump context from its
// displacement: the Displacement input is linked and the method is not
// true displacement only. Background shaders never bump.
func HasBump(g *Graph, m DisplacementMethod, background bool) bool {
	if background || g == nil || g.Output() == nil {
		return false
	}
	return m != DisplacementTrue && g.Output().Input("Displacement").Link != nil
}

// HasDisplacement reports whether a shader moves geometry: the
// Displacement input is linked and the method is not bump only.
func HasDisplacement(g *Graph, m DisplacementMethod) bool {
	if g == nil || g.Output() == nil {
		return false
	}
	return m != DisplacementBump && g.Output().Input("Displacement").Link != nil
}
