package shader

import "time"

// Stage describes a phase of a host or device update.
type Stage string

const (
	// StageCompile covers finalizing and compiling one shader.
	StageCompile Stage = "compile"
	// StageDevice covers building the device table.
	StageDevice Stage = "device"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	// StatusFailed means at least one context failed; siblings may be valid.
	StatusFailed Status = "failed"
	// StatusCancelled leaves the shader dirty for the next update.
	StatusCancelled Status = "cancelled"
)

// Event reports progress for a shader, or for the whole update when Shader
// is empty.
type Event struct {
	Shader  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Sinks are called from compile
// workers and must be safe for concurrent use.
type ProgressSink interface {
	OnEvent(Event)
}

// ChanSink forwards events to a channel.
type ChanSink chan<- Event

func (c ChanSink) OnEvent(ev Event) { c <- ev }

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
