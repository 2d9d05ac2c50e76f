package svm

import (
	"slices"

	"shadekit/internal/graph"
)

// NoEntry marks a context without a program body.
const NoEntry = -1

// Program is the flat instruction array of one shader. Entry points index
// Instrs; the Bump body, when present, falls through into the Surface body.
type Program struct {
	Name   string
	Instrs []Instr
	Entry  [graph.NumContexts]int
	// AOVs lists output names in the order AOV instructions refer to them.
	AOVs []string
	// Attributes lists attribute names in the order attribute
	// instructions refer to them.
	Attributes []string
}

// EntryFor returns where evaluation of c starts. Surface evaluation starts
// at the bump body when the shader has one.
func (p *Program) EntryFor(c graph.Context) int {
	if c == graph.ContextSurface && p.Entry[graph.ContextBump] != NoEntry {
		return p.Entry[graph.ContextBump]
	}
	return p.Entry[c]
}

// ContextResult describes the outcome of one context.
type ContextResult struct {
	Context graph.Context
	Instrs  []Instr
	// Skipped is set when the context root is unlinked or not requested.
	Skipped   bool
	Failed    bool
	PeakStack int
}

// Valid reports whether the context produced usable instructions.
func (r *ContextResult) Valid() bool { return !r.Skipped && !r.Failed }

type Result struct {
	Program  *Program
	Contexts [graph.NumContexts]ContextResult
	Caps     graph.Caps
	Summary  *Summary
	Finalize graph.FinalizeReport
}

// link lays out the context bodies as bump, surface, volume, displacement.
func link(name string, res *Result) *Program {
	p := &Program{Name: name}
	for i := range p.Entry {
		p.Entry[i] = NoEntry
	}
	order := [...]graph.Context{graph.ContextBump, graph.ContextSurface, graph.ContextVolume, graph.ContextDisplacement}
	for _, c := range order {
		cr := &res.Contexts[c]
		if c == graph.ContextBump && cr.Skipped {
			continue
		}
		p.Entry[c] = len(p.Instrs)
		p.Instrs = append(p.Instrs, cr.Instrs...)
	}
	p.Instrs = slices.Clip(p.Instrs)
	return p
}
