package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// ErrDecode is returned when the input bytes cannot be decoded to PCM.
var ErrDecode = errors.New("audio decode failed")

// Container identifies the encoded audio format of a clip
type Container string

const (
	ContainerUnknown Container = "unknown"
	ContainerWAV     Container = "wav"
	ContainerFLAC    Container = "flac"
	ContainerMP3     Container = "mp3"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// PCM holds decoded, interleaved samples scaled to [-1, 1].
type PCM struct {
	Samples    []float64
	SampleRate int
	Channels   int
	Container  Container
}

// Frames returns the number of sample frames (samples per channel)
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// DetectContainer inspects the magic bytes of data
func DetectContainer(data []byte) Container {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContainerWAV
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return ContainerFLAC
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	}
	return ContainerUnknown
}

// Decode decodes data into interleaved PCM. All failures wrap ErrDecode.
func Decode(data []byte) (*PCM, error) {
	var (
		pcm *PCM
		err error
	)

	container := DetectContainer(data)
	switch container {
	case ContainerWAV:
		pcm, err = decodeWAV(data)
	case ContainerFLAC:
		pcm, err = decodeFLAC(data)
	case ContainerMP3:
		pcm, err = decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized container", ErrDecode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, container, err)
	}

	if pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid sample rate %d", ErrDecode, container, pcm.SampleRate)
	}
	if pcm.Channels <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid channel count %d", ErrDecode, container, pcm.Channels)
	}
	if pcm.Frames() == 0 {
		return nil, fmt.Errorf("%w: %s: no audio data found", ErrDecode, container)
	}

	pcm.Container = container
	return pcm, nil
}

func decodeWAV(data []byte) (*PCM, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	format := int(decoder.WavAudioFormat)
	if format == wavFormatExtensible {
		sub, ok := wavSubFormat(data)
		if !ok {
			return nil, fmt.Errorf("extensible WAV without subformat")
		}
		format = sub
	}

	switch format {
	case wavFormatPCM:
	case wavFormatFloat:
		return decodeFloatWAV(decoder)
	default:
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM and IEEE float are supported)", format)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("missing PCM format")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}

	return &PCM{
		Samples:    intBufferToFloat(buf, bitDepth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// decodeFloatWAV reads 32 or 64 bit IEEE float samples straight from the
// data chunk. The decoder's integer buffers cannot carry them.
func decodeFloatWAV(decoder *wav.Decoder) (*PCM, error) {
	bitDepth := int(decoder.BitDepth)
	if bitDepth != 32 && bitDepth != 64 {
		return nil, fmt.Errorf("unsupported float bit depth: %d", bitDepth)
	}
	channels := int(decoder.NumChans)
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find data chunk: %w", err)
	}
	if decoder.PCMChunk == nil {
		return nil, fmt.Errorf("missing data chunk")
	}

	raw, err := io.ReadAll(io.LimitReader(decoder.PCMChunk, int64(decoder.PCMChunk.Size)))
	if err != nil {
		return nil, fmt.Errorf("failed to read data chunk: %w", err)
	}

	width := bitDepth / 8
	n := len(raw) / (width * channels) * channels
	samples := make([]float64, n)
	for i := range samples {
		b := raw[i*width:]
		if width == 4 {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		} else {
			samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
	}

	return &PCM{
		Samples:    samples,
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
	}, nil
}

// wavSubFormat returns the format code carried in the SubFormat GUID of a
// WAVE_FORMAT_EXTENSIBLE fmt chunk.
func wavSubFormat(data []byte) (int, bool) {
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if id == "fmt " {
			if size < 26 || body+26 > len(data) {
				return 0, false
			}
			return int(binary.LittleEndian.Uint16(data[body+24 : body+26])), true
		}
		pos = body + size + size%2
	}
	return 0, false
}

// intBufferToFloat scales integer PCM to [-1, 1]. 8-bit WAV data is unsigned.
func intBufferToFloat(buf *goaudio.IntBuffer, bitDepth int) []float64 {
	out := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		for i, v := range buf.Data {
			out[i] = (float64(v) - 128) / 128
		}
		return out
	}

	scale := fullScale(bitDepth)
	for i, v := range buf.Data {
		out[i] = float64(v) / scale
	}
	return out
}

func decodeFLAC(data []byte) (*PCM, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	scale := fullScale(int(info.BitsPerSample))

	samples := make([]float64, 0, int(info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}
		if len(frame.Subframes) < channels {
			return nil, fmt.Errorf("FLAC frame has %d subframes, expected %d", len(frame.Subframes), channels)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float64(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return &PCM{
		Samples:    samples,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
	}, nil
}

func decodeMP3(data []byte) (*PCM, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	// The MP3 decoder always emits 16-bit little-endian stereo
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read MP3 stream: %w", err)
	}

	n := len(raw) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}

	return &PCM{
		Samples:    samples,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}

func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	return float64(int64(1) << uint(bitDepth-1))
}
