package shader

import (
	"sync"

	"shadekit/internal/graph"
	"shadekit/internal/osl"
	"shadekit/internal/svm"
)

// State is the compilation state of one shading context.
type State uint8

const (
	// StateClean means the context root is unlinked; nothing to compile.
	StateClean State = iota
	StateDirty
	StateCompiling
	StateValid
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateCompiling:
		return "compiling"
	case StateValid:
		return "valid"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Shader is one material: a graph plus the programs compiled from it.
// ID is assigned by the manager and indexes the device table.
type Shader struct {
	ID           int
	Name         string
	Displacement graph.DisplacementMethod
	UseMIS       bool
	// Background shaders never get a bump body.
	Background bool

	mu       sync.Mutex
	graph    *graph.Graph
	modified bool
	states   [graph.NumContexts]State
	caps     graph.Caps
	program  *svm.Program
	groups   [graph.NumContexts]*osl.Group
	report   *Report
}

func New(name string, g *graph.Graph) *Shader {
	s := &Shader{ID: -1, Name: name, UseMIS: true}
	s.SetGraph(g)
	return s
}

// SetGraph replaces the graph and marks every context dirty.
func (s *Shader) SetGraph(g *graph.Graph) {
	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()
	s.TagUpdate()
}

// TagUpdate marks the shader for recompilation, e.g. after a graph edit or
// a global feature change.
func (s *Shader) TagUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = true
	for i := range s.states {
		s.states[i] = StateDirty
	}
}

func (s *Shader) Graph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

func (s *Shader) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

func (s *Shader) State(c graph.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[c]
}

// Caps returns the capability flags of the last successful compilation.
func (s *Shader) Caps() graph.Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Program returns the installed bytecode program, if any.
func (s *Shader) Program() *svm.Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.program
}

// Group returns the installed program group of c, if any.
func (s *Shader) Group(c graph.Context) *osl.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[c]
}

func (s *Shader) beginCompile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.states {
		if st == StateDirty {
			s.states[i] = StateCompiling
		}
	}
}

// abortCompile returns compiling contexts to dirty; installed programs are
// left untouched.
func (s *Shader) abortCompile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.states {
		if st == StateCompiling {
			s.states[i] = StateDirty
		}
	}
}

// install replaces programs and states wholesale with a compile outcome.
func (s *Shader) install(out *Compiled, rep *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = out.States
	s.caps = out.Caps
	s.program = out.Program
	s.groups = out.Groups
	s.report = rep
	s.modified = false
}

func (s *Shader) failAll(rep *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.states {
		if st == StateCompiling {
			s.states[i] = StateFailed
		}
	}
	s.caps = 0
	s.program = nil
	s.groups = [graph.NumContexts]*osl.Group{}
	for i, st := range s.states {
		rep.States[i] = st.String()
	}
	s.report = rep
	s.modified = false
}

func (s *Shader) lastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}
