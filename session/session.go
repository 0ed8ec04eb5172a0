// Package session orchestrates one spoken order at a time: permission,
// capture, transcription, dietary scanning, and the confirm/cancel
// decision. The controller is the only component with real state; it
// publishes everything the UI needs on a single event channel.
package session

import (
	"time"

	"garcon/audio"
	"garcon/orders"
	"garcon/permission"
)

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateConfirming State = "confirming"
	StateError      State = "error"
)

type Reason string

const (
	ReasonRecordingStarted     Reason = "recording_started"
	ReasonPermissionDenied     Reason = "permission_denied"
	ReasonDeviceNotFound       Reason = "device_not_found"
	ReasonPermissionError      Reason = "permission_error"
	ReasonRequestingPermission Reason = "requesting_permission"
	ReasonCaptureFailed        Reason = "capture_failed"
	ReasonTooShort             Reason = "too_short"
	ReasonStopped              Reason = "stopped"
	ReasonMaxDuration          Reason = "max_duration"
	ReasonTranscribed          Reason = "transcribed"
	ReasonTranscriptionFailed  Reason = "transcription_failed"
	ReasonConfirmed            Reason = "confirmed"
	ReasonCancelled            Reason = "cancelled"
	ReasonAborted              Reason = "aborted"
	ReasonAccessRevoked        Reason = "access_revoked"
	ReasonErrorReset           Reason = "error_reset"
)

type EventKind string

const (
	EventState EventKind = "state"
	EventTick  EventKind = "tick"
	EventLevel EventKind = "level"
)

// Event is the single notification type the controller emits. State
// events carry the transition and any text produced along the way;
// tick and level events feed the recording display.
type Event struct {
	Kind    EventKind
	State   State
	Reason  Reason
	Message string

	SessionID  string
	Elapsed    time.Duration
	Level      float64
	Text       string
	Confidence float64
	Alerts     []string
	Draft      *orders.Draft
}

// PermissionGate is the slice of permission.Gate the controller needs.
type PermissionGate interface {
	Query() permission.State
	Request() permission.State
	SubscribeRevoked(fn func())
}

// Capture is the slice of audio.Recorder the controller needs.
type Capture interface {
	Start() error
	Stop() (audio.Take, error)
	Abort()
	SetLevelFunc(fn audio.LevelFunc)
}

type Config struct {
	MinDuration       time.Duration
	MaxDuration       time.Duration
	Tick              time.Duration
	ErrorReset        time.Duration
	TranscribeTimeout time.Duration
	SampleRate        int
	Channels          int
}

func DefaultConfig() Config {
	return Config{
		MinDuration: time.Second,
		MaxDuration: 30 * time.Second,
		Tick:        100 * time.Millisecond,
		ErrorReset:  2 * time.Second,
		SampleRate:  16000,
		Channels:    1,
	}
}
