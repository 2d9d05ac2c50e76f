// Package diag defines the diagnostic model shared by the shader compilers
// and the shader manager.
//
// A Diagnostic names a Subject (shader, shading context, node) instead of a
// source position: compilation failures are local to one shader and one
// context, and the subject is what a user needs to locate them.
//
// Producers emit through a Reporter and never format or print. Bag
// collects diagnostics with a limit; DedupReporter suppresses repeats, which
// matters when the same broken program is referenced by many shaders.
//
// Codes are grouped by range:
//
//	1000-1999  SVM bytecode generation
//	2000-2999  program back end (loading, introspection, building)
//	3000-3999  graph structure
//	4000-4999  scene and configuration input
//	6000-6999  observability
package diag
