package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T, ctx *FakeContext) *Recorder {
	t.Helper()
	return NewRecorder(ctx, RecorderConfig{
		SampleRate:       16000,
		Channels:         1,
		ChunkInterval:    10 * time.Millisecond,
		FormatCandidates: []string{"wav", "flac"},
	})
}

func TestRecorderStartStop(t *testing.T) {
	ctx := NewFakeContext()
	rec := newTestRecorder(t, ctx)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := rec.Format(); got != "wav" {
		t.Errorf("Format = %q, want wav", got)
	}

	capture := ctx.LastCapture()
	if capture == nil || !capture.Started() {
		t.Fatal("capture device not started")
	}

	capture.Feed(make([]int16, 1600))
	capture.Feed(make([]int16, 1600))

	take, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !capture.ClosedDevice() {
		t.Error("capture device not released after Stop")
	}
	if got := len(take.PCM()); got != 2*1600*2 {
		t.Errorf("PCM length = %d, want %d", got, 2*1600*2)
	}
	if take.Format != "wav" {
		t.Errorf("take format = %q", take.Format)
	}
}

func TestRecorderChunkSequence(t *testing.T) {
	ctx := NewFakeContext()
	rec := newTestRecorder(t, ctx)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	capture := ctx.LastCapture()

	for i := 0; i < 5; i++ {
		capture.Feed(make([]int16, 320))
		time.Sleep(15 * time.Millisecond)
	}

	take, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(take.Chunks) == 0 {
		t.Fatal("no chunks recorded")
	}
	for i, c := range take.Chunks {
		if c.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
	}
}

func TestRecorderStopWhenIdle(t *testing.T) {
	rec := newTestRecorder(t, NewFakeContext())
	if _, err := rec.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("err = %v, want ErrNotCapturing", err)
	}
}

func TestRecorderDoubleStart(t *testing.T) {
	rec := newTestRecorder(t, NewFakeContext())
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Start(); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("second Start err = %v, want ErrAlreadyCapturing", err)
	}
	rec.Abort()
}

func TestRecorderAbortDiscards(t *testing.T) {
	ctx := NewFakeContext()
	rec := newTestRecorder(t, ctx)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	capture := ctx.LastCapture()
	capture.Feed(make([]int16, 1600))

	rec.Abort()
	if !capture.ClosedDevice() {
		t.Error("capture device not released after Abort")
	}

	// Idempotent, and Stop afterwards reports idle.
	rec.Abort()
	if _, err := rec.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("Stop after Abort err = %v, want ErrNotCapturing", err)
	}
}

func TestRecorderRestartAfterStop(t *testing.T) {
	ctx := NewFakeContext()
	rec := newTestRecorder(t, ctx)

	for i := 0; i < 3; i++ {
		if err := rec.Start(); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		ctx.LastCapture().Feed(make([]int16, 160))
		take, err := rec.Stop()
		if err != nil {
			t.Fatalf("Stop %d: %v", i, err)
		}
		if len(take.PCM()) != 160*2 {
			t.Errorf("take %d PCM length = %d", i, len(take.PCM()))
		}
	}
}

func TestRecorderConcurrentStopAbortRestart(t *testing.T) {
	ctx := NewFakeContext()
	rec := newTestRecorder(t, ctx)

	for i := 0; i < 100; i++ {
		if err := rec.Start(); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		ctx.LastCapture().Feed(make([]int16, 160))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			rec.Stop()
		}()
		go func() {
			defer wg.Done()
			rec.Abort()
			// A restart racing the release must either succeed with a
			// fresh device or report busy, never corrupt the take.
			if err := rec.Start(); err == nil {
				rec.Abort()
			} else if !errors.Is(err, ErrAlreadyCapturing) {
				t.Errorf("restart err = %v", err)
			}
		}()
		wg.Wait()
		rec.Abort()
	}

	// The recorder comes out of the churn reusable with fresh state.
	if err := rec.Start(); err != nil {
		t.Fatalf("Start after churn: %v", err)
	}
	ctx.LastCapture().Feed(make([]int16, 160))
	take, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop after churn: %v", err)
	}
	if got := len(take.PCM()); got != 160*2 {
		t.Errorf("PCM length = %d, want %d", got, 160*2)
	}
	for i, c := range take.Chunks {
		if c.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
	}
	if !ctx.LastCapture().ClosedDevice() {
		t.Error("capture device not released after final Stop")
	}
}

func TestRecorderStartFailureReleasesDevice(t *testing.T) {
	ctx := NewFakeContext()
	ctx.StartErr = errors.New("device busy")
	rec := newTestRecorder(t, ctx)

	if err := rec.Start(); err == nil {
		t.Fatal("expected Start to fail")
	}
	if capture := ctx.LastCapture(); capture != nil && !capture.ClosedDevice() {
		t.Error("failed start left the device open")
	}
}

func TestRecorderNoSupportedFormat(t *testing.T) {
	ctx := NewFakeContext()
	rec := NewRecorder(ctx, RecorderConfig{
		SampleRate:       16000,
		Channels:         1,
		FormatCandidates: []string{"opus"},
	})
	if err := rec.Start(); err == nil {
		t.Fatal("expected negotiation failure")
	}
	if ctx.LastCapture() != nil {
		t.Error("device opened despite negotiation failure")
	}
}

func TestRecorderLevelFunc(t *testing.T) {
	ctx := NewFakeContext()
	rec := newTestRecorder(t, ctx)

	var mu sync.Mutex
	var levels []float64
	rec.SetLevelFunc(func(l float64) {
		mu.Lock()
		levels = append(levels, l)
		mu.Unlock()
	})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	capture := ctx.LastCapture()

	loud := make([]int16, 320)
	for i := range loud {
		loud[i] = 16000
	}
	capture.Feed(loud)
	capture.Feed(make([]int16, 320))

	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(levels) != 2 {
		t.Fatalf("got %d level callbacks, want 2", len(levels))
	}
	if levels[0] < 0.3 || levels[0] > 1 {
		t.Errorf("loud level = %f, want around 0.5", levels[0])
	}
	if levels[1] != 0 {
		t.Errorf("silent level = %f, want 0", levels[1])
	}
}

func TestApplyGain(t *testing.T) {
	pcm := func(samples ...int16) []byte {
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out
	}

	data := pcm(100, -100, 10000, -10000)
	applyGain(data, 8)
	if want := pcm(800, -800, 32767, -32768); !bytes.Equal(data, want) {
		t.Errorf("boosted = %v, want %v", data, want)
	}

	data = pcm(100, -100)
	applyGain(data, 1)
	if want := pcm(100, -100); !bytes.Equal(data, want) {
		t.Errorf("unity gain changed samples: %v", data)
	}
}

func TestIsBluetooth(t *testing.T) {
	for name, want := range map[string]bool{
		"AirPods Pro":            true,
		"Jabra Speak 510":        true,
		"Built-in Microphone":    false,
		"USB Condenser Mic":      false,
		"Sony WH-1000XM4 Hands-Free": true,
	} {
		if got := IsBluetooth(name); got != want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", name, got, want)
		}
	}
}
