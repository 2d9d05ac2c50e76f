package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"shadekit/internal/shader"
	"shadekit/internal/ui"
)

// runWithUI runs work in the background while a progress view renders the
// events it sends to its sink.
func runWithUI(title string, names []string, work func(shader.ProgressSink) error) error {
	events := make(chan shader.Event, 256)
	outcome := make(chan error, 1)

	go func() {
		err := work(shader.ChanSink(events))
		close(events)
		outcome <- err
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, names, events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// keep the worker unblocked if the view quit early
	for range events {
	}
	err := <-outcome
	if uiErr != nil {
		return uiErr
	}
	return err
}
