// Package permission mediates microphone access. Desktop audio stacks
// have no first-class permission API, so the gate infers state by
// enumerating and briefly acquiring a capture device, and classifies
// backend errors into a stable state enum.
package permission

import (
	"strings"
	"sync"
	"time"

	"garcon/audio"
	"garcon/log"
)

type State string

const (
	StateUnknown        State = "unknown"
	StatePrompt         State = "prompt"
	StateGranted        State = "granted"
	StateDenied         State = "denied"
	StateDeviceNotFound State = "device-not-found"
	StateError          State = "error"
)

// Granted reports whether the state allows capture to proceed.
func (s State) Granted() bool { return s == StateGranted }

var watchInterval = 3 * time.Second

// Gate tracks microphone permission over an audio backend and notifies
// subscribers when a previously granted permission is revoked.
type Gate struct {
	ctx    audio.Context
	device *audio.DeviceInfo
	config audio.CaptureConfig

	mu       sync.Mutex
	state    State
	revoked  []func()
	watching bool
	stop     chan struct{}
	done     chan struct{}
}

func NewGate(ctx audio.Context, device *audio.DeviceInfo, config audio.CaptureConfig) *Gate {
	return &Gate{
		ctx:    ctx,
		device: device,
		config: config,
		state:  StateUnknown,
	}
}

// Query returns the current permission state without prompting the
// user. Enumeration succeeding with at least one device is treated as
// prompt-or-granted; a prior successful Request upgrades it to granted.
func (g *Gate) Query() State {
	g.mu.Lock()
	prev := g.state
	g.mu.Unlock()

	devices, err := g.ctx.Devices()
	state := classify(err, len(devices))
	if state == StatePrompt && prev == StateGranted {
		state = StateGranted
	}

	g.setState(state)
	return state
}

// Request acquires a capture device, which surfaces the OS permission
// prompt on platforms that have one, then releases it immediately. The
// resulting state is terminal for this call: granted, denied,
// device-not-found or error.
func (g *Gate) Request() State {
	state := g.probe()
	g.setState(state)
	if state == StateGranted {
		g.startWatcher()
	}
	return state
}

func (g *Gate) probe() State {
	devices, err := g.ctx.Devices()
	if state := classify(err, len(devices)); state != StatePrompt && state != StateGranted {
		return state
	}

	capture, err := g.ctx.NewCapture(g.device, g.config)
	if err != nil {
		return classifyErr(err)
	}
	if err := capture.Start(); err != nil {
		capture.Close()
		return classifyErr(err)
	}
	capture.Stop()
	capture.Close()
	return StateGranted
}

// SubscribeRevoked registers fn to run when a granted permission is
// lost. Each revocation fires once; the watcher re-arms if access
// comes back.
func (g *Gate) SubscribeRevoked(fn func()) {
	g.mu.Lock()
	g.revoked = append(g.revoked, fn)
	g.mu.Unlock()
}

func (g *Gate) startWatcher() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watching {
		return
	}
	g.watching = true
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.watch(g.stop, g.done)
}

func (g *Gate) watch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	armed := true
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			devices, err := g.ctx.Devices()
			state := classify(err, len(devices))
			switch {
			case state == StateDenied || state == StateDeviceNotFound:
				if armed {
					armed = false
					log.Warnf("microphone access lost: %s", state)
					g.setState(state)
					g.fireRevoked()
				}
			case state == StatePrompt || state == StateGranted:
				if !armed {
					armed = true
					g.setState(StateGranted)
				}
			}
		}
	}
}

func (g *Gate) fireRevoked() {
	g.mu.Lock()
	fns := make([]func(), len(g.revoked))
	copy(fns, g.revoked)
	g.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// State returns the last observed permission state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close stops the revocation watcher.
func (g *Gate) Close() {
	g.mu.Lock()
	if !g.watching {
		g.mu.Unlock()
		return
	}
	g.watching = false
	stop, done := g.stop, g.done
	g.mu.Unlock()
	close(stop)
	<-done
}

func classify(err error, deviceCount int) State {
	if err != nil {
		return classifyErr(err)
	}
	if deviceCount == 0 {
		return StateDeviceNotFound
	}
	return StatePrompt
}

// classifyErr maps backend error text onto the state enum. The audio
// libraries return plain errors, so substring matching is all we have.
func classifyErr(err error) State {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied") || strings.Contains(msg, "permission") ||
		strings.Contains(msg, "not authorized"):
		return StateDenied
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no device") ||
		strings.Contains(msg, "no such device") || strings.Contains(msg, "no capture"):
		return StateDeviceNotFound
	default:
		return StateError
	}
}
