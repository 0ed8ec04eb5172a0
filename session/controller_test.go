package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"garcon/alerts"
	"garcon/audio"
	"garcon/orders"
	"garcon/permission"
	"garcon/transcriber"
)

type fakeGate struct {
	mu           sync.Mutex
	queryState   permission.State
	requestState permission.State
	requests     int
	revoked      []func()
}

func (g *fakeGate) Query() permission.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queryState
}

func (g *fakeGate) Request() permission.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests++
	if g.requestState == permission.StateGranted {
		g.queryState = permission.StateGranted
	}
	return g.requestState
}

func (g *fakeGate) SubscribeRevoked(fn func()) {
	g.mu.Lock()
	g.revoked = append(g.revoked, fn)
	g.mu.Unlock()
}

func (g *fakeGate) Revoke() {
	g.mu.Lock()
	fns := make([]func(), len(g.revoked))
	copy(fns, g.revoked)
	g.queryState = permission.StateDenied
	g.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeSubmitter struct {
	mu     sync.Mutex
	drafts []orders.Draft
	err    error
}

func (s *fakeSubmitter) Submit(_ context.Context, draft orders.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.drafts = append(s.drafts, draft)
	return nil
}

func (s *fakeSubmitter) Drafts() []orders.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Draft, len(s.drafts))
	copy(out, s.drafts)
	return out
}

type fixture struct {
	ctrl    *Controller
	gate    *fakeGate
	audio   *audio.FakeContext
	trans   *transcriber.Fake
	submit  *fakeSubmitter
	capture *audio.Recorder
}

func testConfig() Config {
	return Config{
		MinDuration: 50 * time.Millisecond,
		MaxDuration: 300 * time.Millisecond,
		Tick:        10 * time.Millisecond,
		ErrorReset:  50 * time.Millisecond,
		SampleRate:  16000,
		Channels:    1,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := audio.NewFakeContext()
	capture := audio.NewRecorder(ctx, audio.RecorderConfig{
		SampleRate:       16000,
		Channels:         1,
		ChunkInterval:    10 * time.Millisecond,
		FormatCandidates: []string{"wav"},
	})
	gate := &fakeGate{
		queryState:   permission.StateGranted,
		requestState: permission.StateGranted,
	}
	trans := &transcriber.Fake{Text: "two burgers no onions", Confidence: 0.95}
	submit := &fakeSubmitter{}

	ctrl := NewController(gate, capture, trans, alerts.NewScanner(nil), submit, testConfig())
	t.Cleanup(ctrl.Close)

	return &fixture{
		ctrl:    ctrl,
		gate:    gate,
		audio:   ctx,
		trans:   trans,
		submit:  submit,
		capture: capture,
	}
}

func waitState(t *testing.T, events <-chan Event, want State) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventState && ev.State == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestBeginWhenAlreadyGranted(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ev := waitState(t, f.ctrl.Events(), StateRecording)
	if ev.Reason != ReasonRecordingStarted {
		t.Errorf("reason = %s", ev.Reason)
	}
	if f.gate.requests != 0 {
		t.Error("permission requested despite being granted")
	}
	if capture := f.audio.LastCapture(); capture == nil || !capture.Started() {
		t.Error("capture device not started")
	}
}

func TestBeginRequestsPermission(t *testing.T) {
	f := newFixture(t)
	f.gate.queryState = permission.StatePrompt

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRequesting)
	waitState(t, f.ctrl.Events(), StateRecording)
	if f.gate.requests != 1 {
		t.Errorf("requests = %d, want 1", f.gate.requests)
	}
}

func TestBeginPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.gate.queryState = permission.StatePrompt
	f.gate.requestState = permission.StateDenied

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ev := waitState(t, f.ctrl.Events(), StateIdle)
	if ev.Reason != ReasonPermissionDenied {
		t.Errorf("reason = %s", ev.Reason)
	}
	if ev.Message == "" {
		t.Error("denied transition carried no message")
	}
	if f.audio.LastCapture() != nil {
		t.Error("capture opened despite denial")
	}
}

func TestBeginWhileActive(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := f.ctrl.Begin(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Begin err = %v, want ErrBusy", err)
	}
}

func TestStopBeforeMinDurationDiscards(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)
	f.ctrl.Stop()

	ev := waitState(t, f.ctrl.Events(), StateIdle)
	if ev.Reason != ReasonTooShort {
		t.Errorf("reason = %s, want too_short", ev.Reason)
	}
	if f.trans.Calls() != 0 {
		t.Error("transcriber called for a too-short take")
	}
	if !f.audio.LastCapture().ClosedDevice() {
		t.Error("device not released on discard")
	}
}

func TestStopTranscribesAndConfirms(t *testing.T) {
	f := newFixture(t)
	f.trans.Text = "chicken soup, gluten free please"

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)
	f.audio.LastCapture().Feed(make([]int16, 1600))
	time.Sleep(60 * time.Millisecond)
	f.ctrl.Stop()

	waitState(t, f.ctrl.Events(), StateProcessing)
	ev := waitState(t, f.ctrl.Events(), StateConfirming)
	if ev.Text != "chicken soup, gluten free please" {
		t.Errorf("text = %q", ev.Text)
	}
	if len(ev.Alerts) != 1 || ev.Alerts[0] != "gluten-free" {
		t.Errorf("alerts = %v, want [gluten-free]", ev.Alerts)
	}
	if !f.audio.LastCapture().ClosedDevice() {
		t.Error("device still open during confirmation")
	}
	if f.trans.LastFormat() != "wav" {
		t.Errorf("transcribed format = %q", f.trans.LastFormat())
	}
}

func TestAutoStopAtMaxDuration(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)

	// No manual stop; the max-duration timer fires.
	ev := waitState(t, f.ctrl.Events(), StateProcessing)
	if ev.Reason != ReasonMaxDuration {
		t.Errorf("reason = %s, want max_duration", ev.Reason)
	}
	waitState(t, f.ctrl.Events(), StateConfirming)
	if f.trans.Calls() != 1 {
		t.Errorf("transcriber calls = %d, want 1", f.trans.Calls())
	}
}

func TestStopAfterAutoStopIsNoop(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateProcessing)
	f.ctrl.Stop() // recording already over; must not disturb processing

	waitState(t, f.ctrl.Events(), StateConfirming)
	if f.trans.Calls() != 1 {
		t.Errorf("transcriber calls = %d, want 1", f.trans.Calls())
	}
}

func TestTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.trans.Err = transcriber.ErrTranscriptionFailed

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)
	time.Sleep(60 * time.Millisecond)
	f.ctrl.Stop()

	ev := waitState(t, f.ctrl.Events(), StateError)
	if ev.Message != "Transcription failed" {
		t.Errorf("message = %q", ev.Message)
	}

	// Error auto-resets to idle without user action.
	ev = waitState(t, f.ctrl.Events(), StateIdle)
	if ev.Reason != ReasonErrorReset {
		t.Errorf("reason = %s, want error_reset", ev.Reason)
	}
}

func TestConfirmSubmitsDraft(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)
	time.Sleep(60 * time.Millisecond)
	f.ctrl.Stop()
	waitState(t, f.ctrl.Events(), StateConfirming)

	err := f.ctrl.Confirm(context.Background(), orders.Context{Table: "12", Seat: "3"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	ev := waitState(t, f.ctrl.Events(), StateIdle)
	if ev.Reason != ReasonConfirmed {
		t.Errorf("reason = %s", ev.Reason)
	}
	if ev.Draft == nil {
		t.Fatal("idle event carried no draft")
	}

	drafts := f.submit.Drafts()
	if len(drafts) != 1 {
		t.Fatalf("submitted %d drafts, want 1", len(drafts))
	}
	if drafts[0].Text != "two burgers no onions" {
		t.Errorf("draft text = %q", drafts[0].Text)
	}
	if drafts[0].Table != "12" || drafts[0].Seat != "3" {
		t.Errorf("draft context = %q/%q", drafts[0].Table, drafts[0].Seat)
	}
	if drafts[0].ID == "" {
		t.Error("draft has no ID")
	}

	// Confirm and cancel are mutually exclusive; both are spent now.
	if err := f.ctrl.Confirm(context.Background(), orders.Context{}); !errors.Is(err, ErrNotConfirming) {
		t.Errorf("second Confirm err = %v, want ErrNotConfirming", err)
	}
}

func TestCancelDiscardsTranscript(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)
	time.Sleep(60 * time.Millisecond)
	f.ctrl.Stop()
	waitState(t, f.ctrl.Events(), StateConfirming)

	f.ctrl.Cancel()
	ev := waitState(t, f.ctrl.Events(), StateIdle)
	if ev.Reason != ReasonCancelled {
		t.Errorf("reason = %s", ev.Reason)
	}
	if err := f.ctrl.Confirm(context.Background(), orders.Context{}); !errors.Is(err, ErrNotConfirming) {
		t.Errorf("Confirm after Cancel err = %v, want ErrNotConfirming", err)
	}
	if len(f.submit.Drafts()) != 0 {
		t.Error("cancelled transcript was submitted")
	}
}

func TestCancelDuringProcessingWins(t *testing.T) {
	f := newFixture(t)
	f.trans.Delay = 100 * time.Millisecond

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)
	time.Sleep(60 * time.Millisecond)
	f.ctrl.Stop()
	waitState(t, f.ctrl.Events(), StateProcessing)

	// Cancel lands while the transcription request is in flight.
	f.ctrl.Cancel()
	waitState(t, f.ctrl.Events(), StateIdle)

	// The late result must be dropped, not surface as confirming.
	time.Sleep(200 * time.Millisecond)
	for {
		select {
		case ev := <-f.ctrl.Events():
			if ev.Kind == EventState && ev.State == StateConfirming {
				t.Fatal("cancelled session still reached confirming")
			}
			continue
		default:
		}
		break
	}
	if got := f.ctrl.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestRevocationDuringRecording(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)

	f.gate.Revoke()

	ev := waitState(t, f.ctrl.Events(), StateIdle)
	if ev.Reason != ReasonAccessRevoked {
		t.Errorf("reason = %s, want access_revoked", ev.Reason)
	}
	if ev.Message != "Microphone access revoked" {
		t.Errorf("message = %q", ev.Message)
	}
	if !f.audio.LastCapture().ClosedDevice() {
		t.Error("device not released on revocation")
	}
	if f.trans.Calls() != 0 {
		t.Error("revoked recording was transcribed")
	}
}

func TestResetWhenIdleIsNoop(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Reset()
	f.ctrl.Reset()
	if got := f.ctrl.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestTickAndLevelEvents(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	waitState(t, f.ctrl.Events(), StateRecording)

	loud := make([]int16, 320)
	for i := range loud {
		loud[i] = 12000
	}
	f.audio.LastCapture().Feed(loud)

	var sawTick, sawLevel bool
	deadline := time.After(time.Second)
	for !sawTick || !sawLevel {
		select {
		case ev := <-f.ctrl.Events():
			switch ev.Kind {
			case EventTick:
				if ev.Elapsed > 0 {
					sawTick = true
				}
			case EventLevel:
				if ev.Level > 0 {
					sawLevel = true
				}
			}
		case <-deadline:
			t.Fatalf("missing feedback events: tick=%v level=%v", sawTick, sawLevel)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	f.ctrl.Close()
	f.ctrl.Close()
	if err := f.ctrl.Begin(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Begin after Close err = %v, want ErrClosed", err)
	}
}
