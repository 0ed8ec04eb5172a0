package encoder

import (
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type WavEncoder struct {
	buf         *seekBuffer
	enc         *wav.Encoder
	format      *gaudio.Format
	totalFrames uint64
	channels    int
	closed      bool
}

func NewWav(sampleRate, channels int) (*WavEncoder, error) {
	buf := &seekBuffer{}
	enc := wav.NewEncoder(buf, sampleRate, BitsPerSample, channels, 1)
	return &WavEncoder{
		buf:      buf,
		enc:      enc,
		format:   &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		channels: channels,
	}, nil
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	samples := make([]int, len(block))
	for i, s := range block {
		samples[i] = int(s)
	}
	buffer := &gaudio.IntBuffer{Format: e.format, Data: samples, SourceBitDepth: BitsPerSample}
	if err := e.enc.Write(buffer); err != nil {
		return fmt.Errorf("writing wav block: %w", err)
	}
	e.totalFrames += uint64(len(block) / e.channels)
	return nil
}

func (e *WavEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("closing wav encoder: %w", err)
	}
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	return e.buf.data
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}

// seekBuffer is the in-memory io.WriteSeeker the wav encoder needs to
// backfill the RIFF header on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	b.pos = next
	return int64(next), nil
}
