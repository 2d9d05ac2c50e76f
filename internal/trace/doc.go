// Package trace records what the shader compiler is doing: host-update
// passes, per-shader compilation, context generation and notable events such
// as stack exhaustion or negative cache entries.
//
// Tracers are carried through the pipeline in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeShader, "shader:glass", 0)
//	defer span.End("")
//
// Implementations: Nop (disabled), StreamTracer (immediate text or NDJSON
// output), RingTracer (last N events kept for dumps) and MultiTracer.
//
// Verbosity is selected with a Level; each level admits events up to a
// scope: phase admits driver and pass events, detail adds per-shader
// events, debug adds per-node events.
package trace
