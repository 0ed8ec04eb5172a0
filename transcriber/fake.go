package transcriber

import (
	"context"
	"sync"
	"time"
)

// Fake is the test transcriber. It returns canned results after an
// optional delay and records what it was asked to transcribe.
type Fake struct {
	Text       string
	Confidence float64
	Err        error
	Delay      time.Duration

	mu         sync.Mutex
	calls      int
	lastFormat string
	lastBytes  int
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, audioData []byte, format string) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.lastFormat = format
	f.lastBytes = len(audioData)
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return Result{}, f.Err
	}
	return Result{Text: f.Text, Confidence: f.Confidence}, nil
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) LastFormat() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFormat
}

func (f *Fake) LastBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBytes
}
