package cli

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/livekit/media-sdk"
)

const micFrameDuration = 20 * time.Millisecond

// pcmSource feeds raw little-endian 16-bit PCM from a reader as paced
// microphone frames. It lets callers pipe pre-recorded audio into a room,
// e.g. `ffmpeg -i in.wav -f s16le - | interview join --mic -`.
type pcmSource struct {
	r          io.Reader
	closer     io.Closer
	sampleRate int
	channels   int
	buf        []byte
	next       time.Time
}

func newPCMSource(r io.Reader, sampleRate, channels int) *pcmSource {
	samplesPerFrame := sampleRate * channels / int(time.Second/micFrameDuration)
	s := &pcmSource{
		r:          r,
		sampleRate: sampleRate,
		channels:   channels,
		buf:        make([]byte, samplesPerFrame*2),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// ReadFrame returns one 20ms frame, sleeping as needed to hold real-time
// pacing when the reader delivers faster than the room consumes.
func (s *pcmSource) ReadFrame() (media.PCM16Sample, error) {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
	s.next = s.next.Add(micFrameDuration)

	n, err := io.ReadFull(s.r, s.buf)
	if err == io.ErrUnexpectedEOF {
		n -= n % 2
		if n == 0 {
			return nil, io.EOF
		}
	} else if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read pcm frame: %w", err)
	}

	frame := make(media.PCM16Sample, n/2)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(s.buf[i*2:]))
	}
	return frame, nil
}

func (s *pcmSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
