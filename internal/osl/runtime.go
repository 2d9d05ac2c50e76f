package osl

import (
	"slices"
	"sync"
)

// Config configures a Runtime.
type Config struct {
	SearchPath []string
	// Compiler is the source compiler command; "oslc" when empty.
	Compiler string
	Loader   []LoaderOption
}

var builtinClosures = []string{
	"diffuse", "oren_nayar", "translucent", "reflection", "refraction",
	"transparent", "microfacet_ggx", "microfacet_beckmann", "emission",
	"background", "holdout", "bssrdf", "absorption", "henyey_greenstein",
}

var rayTypes = []string{
	"camera", "reflection", "refraction", "diffuse", "glossy",
	"singular", "transparent", "shadow", "volume_scatter",
}

// Runtime is the shared program back end. It is initialised by the first
// Acquire and torn down by the last Release. Building groups is serialised
// by Lock; reading sealed groups needs no lock.
type Runtime struct {
	cfg Config

	mu       sync.Mutex
	users    int
	loader   *Loader
	closures []string

	compileMu sync.Mutex
}

func NewRuntime(cfg Config) *Runtime {
	if cfg.Compiler == "" {
		cfg.Compiler = "oslc"
	}
	return &Runtime{cfg: cfg}
}

// Acquire registers a user, initialising shared state on first use.
func (r *Runtime) Acquire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users == 0 {
		opts := []LoaderOption{
			WithSearchPath(r.cfg.SearchPath...),
			WithCompileFunc(ExecCompiler(r.cfg.Compiler, r.cfg.SearchPath...)),
		}
		r.loader = NewLoader(append(opts, r.cfg.Loader...)...)
		r.closures = slices.Clone(builtinClosures)
	}
	r.users++
}

// Release drops a user; the last release frees shared state.
func (r *Runtime) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users == 0 {
		return
	}
	r.users--
	if r.users == 0 {
		r.loader = nil
		r.closures = nil
	}
}

func (r *Runtime) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users
}

// Loader returns the program loader, or nil when the runtime is not acquired.
func (r *Runtime) Loader() *Loader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loader
}

// HasClosure reports whether name is a registered closure.
func (r *Runtime) HasClosure(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.closures, name)
}

// RayTypes lists ray type names in bit order.
func (r *Runtime) RayTypes() []string { return slices.Clone(rayTypes) }

// Lock serialises group building across the process.
func (r *Runtime) Lock() { r.compileMu.Lock() }

func (r *Runtime) Unlock() { r.compileMu.Unlock() }
