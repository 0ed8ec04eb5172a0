// Package cue plays short audible ticks so waitstaff know the device
// heard them without looking at the screen. Playback is fire-and-forget
// and never blocks the session pipeline.
package cue

var disabled bool

// Disable silences all cues, for tests and quiet dining rooms.
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Record start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Record stop: medium pitch, slightly longer
	stopFreq   = 900
	stopVolume = 0.5
	stopDecay  = 40

	// Order sent: bright double-tick
	sentFreq   = 1000
	sentVolume = 0.5
	sentDecay  = 35

	// Error: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)
