package audio

import (
	"encoding/binary"
	"sync"
)

// FakeContext is an in-memory backend for tests. Failure modes are
// injected through the exported error fields.
type FakeContext struct {
	DevicesErr error
	CaptureErr error
	StartErr   error

	mu       sync.Mutex
	devices  []DeviceInfo
	captures []*FakeCapture
	closed   bool
}

func NewFakeContext(devices ...DeviceInfo) *FakeContext {
	if len(devices) == 0 {
		devices = []DeviceInfo{{ID: "fake0", Name: "fake mic"}}
	}
	return &FakeContext{devices: devices}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DevicesErr != nil {
		return nil, f.DevicesErr
	}
	out := make([]DeviceInfo, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *FakeContext) SetDevices(devices []DeviceInfo) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	c := &FakeCapture{startErr: f.StartErr}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *FakeContext) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *FakeContext) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// LastCapture returns the most recently created capture, or nil.
func (f *FakeContext) LastCapture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

// FakeCapture records lifecycle calls and lets tests push PCM through
// the data callback with Feed.
type FakeCapture struct {
	startErr error

	mu        sync.Mutex
	cb        DataCallback
	started   bool
	stopCount int
	closed    bool
}

func (c *FakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	c.started = false
	c.stopCount++
	c.mu.Unlock()
}

func (c *FakeCapture) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

// Feed pushes 16-bit samples through the callback, as the platform
// backends would.
func (c *FakeCapture) Feed(samples []int16) {
	c.mu.Lock()
	cb := c.cb
	started := c.started
	c.mu.Unlock()
	if cb == nil || !started {
		return
	}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	cb(data, uint32(len(samples)))
}

func (c *FakeCapture) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *FakeCapture) StopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCount
}

func (c *FakeCapture) ClosedDevice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
