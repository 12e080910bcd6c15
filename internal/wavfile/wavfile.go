// Package wavfile builds and inspects WAV containers in memory.
package wavfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// MIMEType is the content type of the produced containers.
const MIMEType = "audio/wav"

// ErrInvalid is returned for data that is not a readable PCM WAV file.
var ErrInvalid = errors.New("wavfile: not a valid wav file")

// Info describes a WAV container.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
}

// Duration returns the playing time of the audio.
func (i Info) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Frames) * time.Second / time.Duration(i.SampleRate)
}

// Encode wraps interleaved integer samples in a PCM WAV container.
func Encode(samples []int, sampleRate, channels, bitDepth int) ([]byte, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("wavfile: unsupported bit depth %d", bitDepth)
	}
	if channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("wavfile: invalid format %d Hz x %d channels", sampleRate, channels)
	}

	out := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	data, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return data, nil
}

// FromPCM wraps little-endian PCM bytes of the given sample width (bytes per
// sample) in a WAV container. 8-bit PCM is unsigned, wider samples are signed.
func FromPCM(pcm []byte, sampleRate, channels, width int) ([]byte, error) {
	if width < 1 || width > 4 {
		return nil, fmt.Errorf("wavfile: unsupported sample width %d", width)
	}
	n := len(pcm) / width
	samples := make([]int, n)
	for i := 0; i < n; i++ {
		b := pcm[i*width : (i+1)*width]
		switch width {
		case 1:
			samples[i] = int(b[0])
		case 2:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case 3:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			samples[i] = int(v<<8) >> 8
		case 4:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	return Encode(samples, sampleRate, channels, width*8)
}

// Inspect validates data and reports its format.
func Inspect(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, ErrInvalid
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("reading pcm: %w", err)
	}
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.Channels > 0 {
		info.Frames = len(buf.Data) / info.Channels
	}
	return info, nil
}

// DecodeMono returns the audio downmixed to one channel with samples in
// [-1, 1], and its sample rate.
func DecodeMono(data []byte) ([]float64, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalid
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading pcm: %w", err)
	}
	if dec.BitDepth == 0 {
		return nil, 0, ErrInvalid
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	full := float64(int64(1) << (dec.BitDepth - 1))
	var bias float64
	if dec.BitDepth == 8 {
		bias = full
	}
	frames := len(buf.Data) / channels
	pcm := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) - bias
		}
		pcm[i] = sum / float64(channels) / full
	}
	return pcm, int(dec.SampleRate), nil
}
