package main

import (
	"context"
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/warden/internal/orchestrator"
	"github.com/ShayCichocki/warden/internal/tui"
	"github.com/ShayCichocki/warden/pkg/models"
)

// tuiForwarder converts orchestrator events into run-viewer messages.
func tuiForwarder(program *tea.Program) func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		program.Send(tui.EventMsg(ev))
	}
}

// runWithTUI runs the orchestrator behind the live run viewer. Events
// arrive through the orchestrator's event handler; this function only
// drives the program and delivers the terminal result.
func runWithTUI(ctx context.Context, orch *orchestrator.Orchestrator, req orchestrator.RunRequest, program *tea.Program, view *tui.RunView) (result *models.OrchestrationResult, retErr error) {
	// Log output corrupts the bubbletea display.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runWithTUI: %v", r)
		}
	}()

	orchDone := make(chan *models.OrchestrationResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				orchDone <- &models.OrchestrationResult{
					Kind:  models.ResultError,
					Error: fmt.Sprintf("INTERNAL: orchestrator panic: %v", r),
				}
			}
		}()
		orchDone <- orch.Run(ctx, req)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case result = <-orchDone:
		program.Send(tui.DoneMsg{Result: result})
		<-tuiDone
		fmt.Print(view.View())
		return result, nil

	case err := <-tuiDone:
		// User quit before the run finished. Let the run wind down so
		// the state database still records a terminal result.
		if err != nil {
			return nil, fmt.Errorf("tui: %w", err)
		}
		result = <-orchDone
		return result, nil
	}
}
