package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"garcon/alerts"
	"garcon/encoder"
	"garcon/log"
	"garcon/orders"
	"garcon/permission"
	"garcon/transcriber"
)

var (
	ErrBusy          = errors.New("a session is already active")
	ErrNotConfirming = errors.New("no transcript awaiting confirmation")
	ErrClosed        = errors.New("controller is closed")
)

const eventBuffer = 64

// Controller runs the recording state machine. All transitions happen
// under one mutex; the generation counter ties async completions
// (transcription, timers) to the session that spawned them, so a
// cancel that lands between stop and dispatch wins.
type Controller struct {
	gate    PermissionGate
	capture Capture
	trans   transcriber.Transcriber
	scanner *alerts.Scanner
	submit  orders.Submitter
	cfg     Config

	events chan Event

	mu        sync.Mutex
	state     State
	gen       int
	sessionID string
	startedAt time.Time
	result    transcriber.Result
	alertSet  []string
	timers    []*time.Timer
	tickStop  chan struct{}
	closed    bool
}

func NewController(
	gate PermissionGate,
	capture Capture,
	trans transcriber.Transcriber,
	scanner *alerts.Scanner,
	submit orders.Submitter,
	cfg Config,
) *Controller {
	if scanner == nil {
		scanner = alerts.NewScanner(nil)
	}
	c := &Controller{
		gate:    gate,
		capture: capture,
		trans:   trans,
		scanner: scanner,
		submit:  submit,
		cfg:     cfg,
		events:  make(chan Event, eventBuffer),
		state:   StateIdle,
	}
	capture.SetLevelFunc(c.onLevel)
	gate.SubscribeRevoked(func() {
		c.abort(ReasonAccessRevoked, "Microphone access revoked")
	})
	return c
}

// Events is the controller's notification channel. Slow consumers drop
// events rather than blocking a transition.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin starts a new session from idle. If permission is not yet
// granted it requests it first, surfacing the outcome as a state
// transition rather than an error.
func (c *Controller) Begin() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}

	c.gen++
	gen := c.gen

	if c.gate.Query().Granted() {
		err := c.startRecordingLocked()
		c.mu.Unlock()
		return err
	}

	c.setStateLocked(StateRequesting, ReasonRequestingPermission, "")
	c.mu.Unlock()

	// The OS prompt can block indefinitely; never hold the lock here.
	state := c.gate.Request()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateRequesting {
		return nil
	}

	if state.Granted() {
		return c.startRecordingLocked()
	}

	reason, msg := permissionOutcome(state)
	c.setStateLocked(StateIdle, reason, msg)
	return nil
}

func permissionOutcome(state permission.State) (Reason, string) {
	switch state {
	case permission.StateDenied:
		return ReasonPermissionDenied, "Microphone access denied"
	case permission.StateDeviceNotFound:
		return ReasonDeviceNotFound, "No microphone found"
	default:
		return ReasonPermissionError, "Microphone unavailable"
	}
}

// startRecordingLocked opens the capture device and arms the session
// timers. Callers must hold c.mu with state idle or requesting.
func (c *Controller) startRecordingLocked() error {
	if err := c.capture.Start(); err != nil {
		msg := "Could not start recording"
		if errors.Is(err, encoder.ErrUnsupportedFormat) {
			msg = "No supported audio format on this device"
		}
		log.Errorf("capture start: %v", err)
		c.setStateLocked(StateError, ReasonCaptureFailed, msg)
		c.armErrorResetLocked(c.gen)
		return err
	}

	c.sessionID = uuid.NewString()
	c.startedAt = time.Now()
	c.setStateLocked(StateRecording, ReasonRecordingStarted, "")
	log.SessionState(c.sessionID, string(StateRecording), string(ReasonRecordingStarted))

	gen := c.gen
	c.armTimerLocked(c.cfg.MaxDuration, func() {
		c.autoStop(gen)
	})
	c.startTickerLocked(gen)
	return nil
}

// Stop ends recording. Under the minimum duration the take is
// discarded without a transcription call; otherwise the controller
// moves to processing and dispatches the audio asynchronously. Calling
// Stop outside recording is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	c.stopRecordingLocked(ReasonStopped)
}

func (c *Controller) autoStop(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A manual stop or abort that ran first wins.
	if c.gen != gen || c.state != StateRecording {
		return
	}
	c.stopRecordingLocked(ReasonMaxDuration)
}

func (c *Controller) stopRecordingLocked(reason Reason) {
	c.clearTimersLocked()
	elapsed := time.Since(c.startedAt)

	if elapsed < c.cfg.MinDuration {
		c.capture.Abort()
		log.SessionState(c.sessionID, string(StateIdle), string(ReasonTooShort))
		c.setStateLocked(StateIdle, ReasonTooShort, "Recording too short, discarded")
		return
	}

	c.setStateLocked(StateProcessing, reason, "")
	log.SessionState(c.sessionID, string(StateProcessing), string(reason))
	go c.transcribe(c.gen)
}

// transcribe runs off the lock: it releases the device, encodes the
// take and calls the provider. The result is applied only if the
// session is still the one that spawned it.
func (c *Controller) transcribe(gen int) {
	take, err := c.capture.Stop()
	if err != nil {
		// An abort raced us and already released the device.
		return
	}

	data, err := encoder.Encode(take.Format, take.PCM(), c.cfg.SampleRate, c.cfg.Channels)
	if err != nil {
		log.Errorf("encoding take: %v", err)
		c.finishProcessing(gen, transcriber.Result{}, fmt.Errorf("%w: %v", transcriber.ErrTranscriptionFailed, err))
		return
	}

	ctx := context.Background()
	if c.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.trans.Transcribe(ctx, data, take.Format)
	if err == nil {
		log.Transcription(c.trans.Name(), take.Format,
			take.Elapsed.Seconds(), float64(time.Since(start).Milliseconds()), result.Confidence)
	}
	c.finishProcessing(gen, result, err)
}

func (c *Controller) finishProcessing(gen int, result transcriber.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Cancelled or superseded while the request was in flight.
	if c.gen != gen || c.state != StateProcessing {
		return
	}

	if err != nil {
		log.Errorf("transcription: %v", err)
		c.setStateLocked(StateError, ReasonTranscriptionFailed, "Transcription failed")
		c.armErrorResetLocked(gen)
		return
	}

	c.result = result
	c.alertSet = c.scanner.Scan(result.Text)
	ev := Event{
		Kind:       EventState,
		State:      StateConfirming,
		Reason:     ReasonTranscribed,
		SessionID:  c.sessionID,
		Text:       result.Text,
		Confidence: result.Confidence,
		Alerts:     c.alertSet,
	}
	c.state = StateConfirming
	c.emitLocked(ev)
	log.SessionState(c.sessionID, string(StateConfirming), string(ReasonTranscribed))
}

// Confirm turns the pending transcript into an order draft, hands it to
// the submitter and returns to idle. The draft also rides on the idle
// event so the UI can show what was sent.
func (c *Controller) Confirm(ctx context.Context, octx orders.Context) error {
	c.mu.Lock()
	if c.state != StateConfirming {
		c.mu.Unlock()
		return ErrNotConfirming
	}

	draft := orders.Draft{
		ID:        uuid.NewString(),
		Text:      c.result.Text,
		Alerts:    c.alertSet,
		Table:     octx.Table,
		Seat:      octx.Seat,
		Resident:  octx.Resident,
		CreatedAt: time.Now(),
	}
	c.state = StateIdle
	c.emitLocked(Event{
		Kind:      EventState,
		State:     StateIdle,
		Reason:    ReasonConfirmed,
		SessionID: c.sessionID,
		Text:      draft.Text,
		Alerts:    draft.Alerts,
		Draft:     &draft,
	})
	c.mu.Unlock()

	log.OrderText(draft.Text, draft.Alerts)
	if c.submit != nil {
		if err := c.submit.Submit(ctx, draft); err != nil {
			log.Errorf("order submission: %v", err)
			return err
		}
		log.OrderSubmitted(draft.ID, draft.Table, draft.Seat, len(draft.Alerts))
	}
	return nil
}

// Cancel discards a pending transcript, or aborts an active recording.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state == StateConfirming {
		c.result = transcriber.Result{}
		c.alertSet = nil
		c.setStateLocked(StateIdle, ReasonCancelled, "")
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.abort(ReasonAborted, "")
}

// Reset is the explicit abort path. Safe to call in any state.
func (c *Controller) Reset() {
	c.abort(ReasonAborted, "")
}

// abort releases everything unconditionally and returns to idle. The
// capture abort runs even when no session is active.
func (c *Controller) abort(reason Reason, msg string) {
	c.mu.Lock()
	c.gen++
	c.clearTimersLocked()
	c.result = transcriber.Result{}
	c.alertSet = nil
	c.capture.Abort()
	if c.state != StateIdle {
		log.SessionState(c.sessionID, string(StateIdle), string(reason))
		c.setStateLocked(StateIdle, reason, msg)
	}
	c.mu.Unlock()
}

// Close aborts any active session and shuts the controller down.
// Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.abort(ReasonAborted, "")
	// No emit path survives the abort: state is idle, the generation is
	// bumped and Begin refuses closed controllers.
	close(c.events)
}

func (c *Controller) onLevel(level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	c.emitLocked(Event{Kind: EventLevel, State: StateRecording, Level: level})
}

func (c *Controller) startTickerLocked(gen int) {
	stop := make(chan struct{})
	c.tickStop = stop
	started := c.startedAt
	go func() {
		ticker := time.NewTicker(c.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.gen == gen && c.state == StateRecording {
					c.emitLocked(Event{
						Kind:    EventTick,
						State:   StateRecording,
						Elapsed: time.Since(started),
					})
				}
				c.mu.Unlock()
			}
		}
	}()
}

func (c *Controller) armErrorResetLocked(gen int) {
	if c.cfg.ErrorReset <= 0 {
		return
	}
	c.armTimerLocked(c.cfg.ErrorReset, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen && c.state == StateError {
			c.setStateLocked(StateIdle, ReasonErrorReset, "")
		}
	})
}

func (c *Controller) armTimerLocked(d time.Duration, fn func()) {
	c.timers = append(c.timers, time.AfterFunc(d, fn))
}

// clearTimersLocked is the single place timers die. Every terminal
// transition goes through here.
func (c *Controller) clearTimersLocked() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *Controller) setStateLocked(state State, reason Reason, msg string) {
	c.state = state
	c.emitLocked(Event{
		Kind:      EventState,
		State:     state,
		Reason:    reason,
		Message:   msg,
		SessionID: c.sessionID,
	})
}

func (c *Controller) emitLocked(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
