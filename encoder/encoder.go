// Package encoder assembles captured PCM into an upload container.
//
// The capture pipeline negotiates a container from a preference-ordered
// candidate list; the first format this package supports wins.
package encoder

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	BitsPerSample = 16
	BlockSize     = 4096
)

// ErrUnsupportedFormat is returned when none of the candidate containers
// are supported on this build.
var ErrUnsupportedFormat = errors.New("no supported audio format")

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// New builds an encoder for the given container format.
func New(format string, sampleRate, channels int) (Encoder, error) {
	switch format {
	case "wav":
		return NewWav(sampleRate, channels)
	case "flac":
		return NewFlac(sampleRate, channels)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Supported reports whether format names a known container.
func Supported(format string) bool {
	switch format {
	case "wav", "flac":
		return true
	}
	return false
}

// Negotiate returns the first supported format from candidates.
func Negotiate(candidates []string) (string, error) {
	for _, c := range candidates {
		if Supported(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w (candidates: %v)", ErrUnsupportedFormat, candidates)
}

// MIMEType returns the upload content type for a negotiated format.
func MIMEType(format string) string {
	switch format {
	case "flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// Encode assembles little-endian 16-bit PCM into the given container in
// one shot. The input slice is not modified.
func Encode(format string, pcm []byte, sampleRate, channels int) ([]byte, error) {
	enc, err := New(format, sampleRate, channels)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	for i := 0; i < len(samples); i += BlockSize {
		end := i + BlockSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, err
		}
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
