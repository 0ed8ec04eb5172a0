// Package audio provides microphone capture behind a small backend
// interface, plus the chunked Recorder the session layer drives.
package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses whether a device name belongs to a bluetooth
// headset. Those resample to 8kHz in HFP mode and wreck transcription.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives raw little-endian 16-bit PCM from the backend.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain is a software boost applied to captured samples. Values
	// below 1 mean unity.
	Gain int32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// applyGain boosts little-endian 16-bit PCM in place, clamping at the
// int16 range.
func applyGain(data []byte, gain int32) {
	if gain <= 1 {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		s := int32(int16(uint16(data[i])|uint16(data[i+1])<<8)) * gain
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		data[i] = byte(s)
		data[i+1] = byte(s >> 8)
	}
}

// FindDevice resolves a device by case-insensitive substring match on
// its name, or by exact ID.
func FindDevice(ctx Context, query string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)
	for i, d := range devices {
		if d.ID == query || strings.Contains(strings.ToLower(d.Name), lower) {
			return &devices[i], nil
		}
	}
	return nil, nil
}
