package permission

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"garcon/audio"
)

func testConfig() audio.CaptureConfig {
	return audio.CaptureConfig{SampleRate: 16000, Channels: 1}
}

func TestQueryWithDevices(t *testing.T) {
	gate := NewGate(audio.NewFakeContext(), nil, testConfig())
	if got := gate.Query(); got != StatePrompt {
		t.Errorf("Query = %s, want prompt", got)
	}
}

func TestQueryNoDevices(t *testing.T) {
	ctx := audio.NewFakeContext()
	ctx.SetDevices(nil)
	gate := NewGate(ctx, nil, testConfig())
	if got := gate.Query(); got != StateDeviceNotFound {
		t.Errorf("Query = %s, want device-not-found", got)
	}
}

func TestQueryDoesNotAcquireDevice(t *testing.T) {
	ctx := audio.NewFakeContext()
	gate := NewGate(ctx, nil, testConfig())
	gate.Query()
	if ctx.LastCapture() != nil {
		t.Error("Query opened a capture device")
	}
}

func TestRequestGranted(t *testing.T) {
	ctx := audio.NewFakeContext()
	gate := NewGate(ctx, nil, testConfig())
	defer gate.Close()

	got := gate.Request()
	if got != StateGranted {
		t.Fatalf("Request = %s, want granted", got)
	}
	if !got.Granted() {
		t.Error("Granted() = false for granted state")
	}

	capture := ctx.LastCapture()
	if capture == nil {
		t.Fatal("Request did not probe a capture device")
	}
	if !capture.ClosedDevice() {
		t.Error("probe device left open")
	}

	// Query after a successful Request stays granted even though
	// enumeration alone cannot distinguish prompt from granted.
	if got := gate.Query(); got != StateGranted {
		t.Errorf("Query after Request = %s, want granted", got)
	}
}

func TestRequestDenied(t *testing.T) {
	ctx := audio.NewFakeContext()
	ctx.StartErr = errors.New("access denied by user")
	gate := NewGate(ctx, nil, testConfig())
	if got := gate.Request(); got != StateDenied {
		t.Errorf("Request = %s, want denied", got)
	}
}

func TestRequestDeviceGone(t *testing.T) {
	ctx := audio.NewFakeContext()
	ctx.CaptureErr = errors.New("no such device")
	gate := NewGate(ctx, nil, testConfig())
	if got := gate.Request(); got != StateDeviceNotFound {
		t.Errorf("Request = %s, want device-not-found", got)
	}
}

func TestRequestBackendError(t *testing.T) {
	ctx := audio.NewFakeContext()
	ctx.StartErr = errors.New("stream init failed")
	gate := NewGate(ctx, nil, testConfig())
	if got := gate.Request(); got != StateError {
		t.Errorf("Request = %s, want error", got)
	}
}

func TestRevocationFiresOnce(t *testing.T) {
	old := watchInterval
	watchInterval = 5 * time.Millisecond
	defer func() { watchInterval = old }()

	ctx := audio.NewFakeContext()
	gate := NewGate(ctx, nil, testConfig())
	defer gate.Close()

	var fired atomic.Int32
	gate.SubscribeRevoked(func() { fired.Add(1) })

	if got := gate.Request(); got != StateGranted {
		t.Fatalf("Request = %s", got)
	}

	ctx.SetDevices(nil)
	deadline := time.After(time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("revocation callback never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Steady loss must not refire.
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("revocation fired %d times, want 1", got)
	}
	if got := gate.State(); got != StateDeviceNotFound {
		t.Errorf("State = %s, want device-not-found", got)
	}

	// Plugging the mic back in re-arms the watcher.
	ctx.SetDevices([]audio.DeviceInfo{{ID: "fake0", Name: "fake mic"}})
	time.Sleep(50 * time.Millisecond)
	ctx.SetDevices(nil)

	deadline = time.After(time.Second)
	for fired.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("second revocation never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClassifyErr(t *testing.T) {
	for _, tt := range []struct {
		msg  string
		want State
	}{
		{"operation not permitted: permission denied", StateDenied},
		{"microphone access not authorized", StateDenied},
		{"pulse: no such device", StateDeviceNotFound},
		{"malgo devices: no capture devices", StateDeviceNotFound},
		{"context deadline exceeded", StateError},
	} {
		if got := classifyErr(errors.New(tt.msg)); got != tt.want {
			t.Errorf("classifyErr(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestCloseWithoutWatcher(t *testing.T) {
	gate := NewGate(audio.NewFakeContext(), nil, testConfig())
	gate.Close() // no watcher running, must not panic
}
