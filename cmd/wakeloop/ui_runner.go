package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"wakeloop/internal/ui"
)

// runWithUI runs work while a progress view renders the events it sends.
// work owns events and must close it before returning.
func runWithUI(out io.Writer, title string, total int, events chan ui.TaskEvent, work func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- work()
	}()

	model := ui.NewProgressModel(title, total, events)
	program := tea.NewProgram(model, tea.WithOutput(out))
	_, uiErr := program.Run()
	// keep the producer from blocking on a view that quit early
	go func() {
		for range events {
		}
	}()
	err := <-errCh
	if uiErr != nil {
		return uiErr
	}
	return err
}
