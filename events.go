package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"garcon/cue"
	"garcon/log"
	"garcon/session"
)

// sessionEventMsg wraps a controller event for the TUI update loop.
type sessionEventMsg session.Event

// forwardEvents pumps controller events into the running program and
// plays the matching audible cue for each transition.
func forwardEvents(p *tea.Program, events <-chan session.Event) {
	confirmed := 0
	for ev := range events {
		playCue(ev)
		if ev.Kind == session.EventState && ev.State == session.StateIdle && ev.Reason == session.ReasonConfirmed {
			confirmed++
		}
		p.Send(sessionEventMsg(ev))
	}
	log.SessionEnd(confirmed)
}

func playCue(ev session.Event) {
	if ev.Kind != session.EventState {
		return
	}
	switch ev.State {
	case session.StateRecording:
		cue.RecordStart()
	case session.StateProcessing:
		cue.RecordStop()
	case session.StateError:
		cue.Alert()
	case session.StateIdle:
		switch ev.Reason {
		case session.ReasonConfirmed:
			cue.OrderSent()
		case session.ReasonAccessRevoked:
			cue.Alert()
		}
	}
}
