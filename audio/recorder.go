package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"garcon/encoder"
)

var (
	ErrNotCapturing     = errors.New("recorder is not capturing")
	ErrAlreadyCapturing = errors.New("recorder is already capturing")
)

// Chunk is one flush interval of raw PCM. Seq increases monotonically
// within a take so downstream consumers can verify ordering.
type Chunk struct {
	Data []byte
	Seq  int
}

// Take is the complete audio of one recording, in capture order.
type Take struct {
	Chunks  []Chunk
	Elapsed time.Duration
	Format  string
}

// PCM concatenates the take's chunks into one buffer.
func (t Take) PCM() []byte {
	var n int
	for _, c := range t.Chunks {
		n += len(c.Data)
	}
	out := make([]byte, 0, n)
	for _, c := range t.Chunks {
		out = append(out, c.Data...)
	}
	return out
}

// LevelFunc receives the normalized RMS level of each capture callback,
// in [0, 1].
type LevelFunc func(level float64)

type RecorderConfig struct {
	SampleRate       int
	Channels         int
	Gain             int
	ChunkInterval    time.Duration
	FormatCandidates []string
	Device           *DeviceInfo
}

// Recorder accumulates microphone PCM into sequence-numbered chunks.
// Start, Stop and Abort are safe for concurrent use; the data callback
// runs on the backend's capture thread.
type Recorder struct {
	ctx Context
	cfg RecorderConfig

	mu        sync.Mutex
	capture   CaptureDevice
	format    string
	capturing bool
	releasing bool
	startedAt time.Time
	pending   []byte
	chunks    []Chunk
	nextSeq   int
	flushStop chan struct{}
	flushDone chan struct{}
	levelFn   LevelFunc
}

func NewRecorder(ctx Context, cfg RecorderConfig) *Recorder {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = time.Second
	}
	return &Recorder{ctx: ctx, cfg: cfg}
}

// SetLevelFunc installs the level meter callback. Pass nil to disable.
func (r *Recorder) SetLevelFunc(fn LevelFunc) {
	r.mu.Lock()
	r.levelFn = fn
	r.mu.Unlock()
}

// Format returns the container negotiated for the current or last take.
func (r *Recorder) Format() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// Start negotiates a container format, opens the capture device and
// begins accumulating chunks.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A release in flight still owns the device and the take state.
	if r.capturing || r.releasing {
		return ErrAlreadyCapturing
	}

	format, err := encoder.Negotiate(r.cfg.FormatCandidates)
	if err != nil {
		return err
	}

	capture, err := r.ctx.NewCapture(r.cfg.Device, CaptureConfig{
		SampleRate: uint32(r.cfg.SampleRate),
		Channels:   uint32(r.cfg.Channels),
		Gain:       int32(r.cfg.Gain),
	})
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}

	capture.SetCallback(r.onData)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return fmt.Errorf("starting capture: %w", err)
	}

	r.capture = capture
	r.format = format
	r.capturing = true
	r.startedAt = time.Now()
	r.pending = nil
	r.chunks = nil
	r.nextSeq = 0
	r.flushStop = make(chan struct{})
	r.flushDone = make(chan struct{})

	go r.flushLoop(r.flushStop, r.flushDone)

	return nil
}

func (r *Recorder) onData(data []byte, _ uint32) {
	r.mu.Lock()
	if !r.capturing {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, data...)
	fn := r.levelFn
	r.mu.Unlock()

	if fn != nil {
		fn(rmsLevel(data))
	}
}

func (r *Recorder) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.cfg.ChunkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.flushPendingLocked()
			r.mu.Unlock()
		}
	}
}

// flushPendingLocked moves buffered PCM into a sequence-numbered chunk.
// Callers must hold r.mu.
func (r *Recorder) flushPendingLocked() {
	if len(r.pending) == 0 {
		return
	}
	r.chunks = append(r.chunks, Chunk{Data: r.pending, Seq: r.nextSeq})
	r.nextSeq++
	r.pending = nil
}

// Elapsed reports how long the current take has been recording, or zero
// when idle.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.capturing {
		return 0
	}
	return time.Since(r.startedAt)
}

// Stop releases the capture device, flushes any buffered PCM and
// returns the completed take. Calling Stop when idle returns
// ErrNotCapturing.
func (r *Recorder) Stop() (Take, error) {
	r.mu.Lock()
	if !r.capturing {
		r.mu.Unlock()
		return Take{}, ErrNotCapturing
	}
	take, _ := r.releaseLocked()
	r.mu.Unlock()
	return take, nil
}

// Abort releases the capture device and discards all buffered audio.
// It never fails and is a no-op when idle.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if r.capturing {
		r.releaseLocked()
	}
	r.mu.Unlock()
}

// releaseLocked tears down the device and assembles the take. The
// device is fully released before this returns, so a new Start can
// reacquire it immediately. Callers must hold r.mu.
func (r *Recorder) releaseLocked() (Take, error) {
	r.capturing = false
	r.releasing = true

	close(r.flushStop)
	capture := r.capture
	done := r.flushDone
	r.capture = nil

	// The flush goroutine and the backend callback both take r.mu, so
	// drop it while waiting for them. The releasing flag keeps Start
	// out until the take below has been assembled.
	r.mu.Unlock()
	<-done
	capture.ClearCallback()
	capture.Stop()
	capture.Close()
	r.mu.Lock()
	r.releasing = false

	r.flushPendingLocked()
	take := Take{
		Chunks:  r.chunks,
		Elapsed: time.Since(r.startedAt),
		Format:  r.format,
	}
	r.chunks = nil
	r.pending = nil
	return take, nil
}

func rmsLevel(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	level := rms / 32768
	if level > 1 {
		level = 1
	}
	return level
}
