package ui

import (
	"strings"
	"testing"
	"time"

	"shadekit/internal/shader"
)

func TestProgressModelTracksShaders(t *testing.T) {
	events := make(chan shader.Event)
	m := NewProgressModel("compiling", []string{"glass", "metal"}, events).(*progressModel)

	m.Update(eventMsg{Stage: shader.StageCompile, Status: shader.StatusWorking})
	m.Update(eventMsg{Shader: "glass", Stage: shader.StageCompile, Status: shader.StatusWorking})
	m.Update(eventMsg{Shader: "glass", Stage: shader.StageCompile, Status: shader.StatusDone, Elapsed: 1500 * time.Microsecond})
	m.Update(eventMsg{Shader: "metal", Stage: shader.StageCompile, Status: shader.StatusFailed})
	m.Update(eventMsg{Shader: "metal", Stage: shader.StageCompile, Status: shader.StatusFailed})
	m.Update(eventMsg{Shader: "unknown", Status: shader.StatusDone})

	if m.finished != 2 {
		t.Fatalf("finished = %d, want 2", m.finished)
	}
	if m.items[0].status != shader.StatusDone || m.items[0].elapsed != "2ms" {
		t.Fatalf("glass = %+v", m.items[0])
	}
	view := m.View()
	if !strings.Contains(view, "compiling (compile)") || !strings.Contains(view, "failed") {
		t.Fatalf("view = %q", view)
	}

	m.Update(doneMsg{})
	if !m.done || !strings.Contains(m.View(), "done: compiling") {
		t.Fatalf("model not finished")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"a_long_shader_name", 10, "a_long_..."},
		{"abcdef", 3, "abc"},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
