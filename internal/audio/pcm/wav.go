package pcm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	formatPCM        = 1
	formatFloat      = 3
	formatExtensible = 0xFFFE
)

// Encoding selects the sample format written by Write.
type Encoding int

const (
	// PCM16 writes signed 16-bit little-endian integers.
	PCM16 Encoding = iota
	// Float32 writes IEEE 754 32-bit floats.
	Float32
)

// ErrUnsupportedFormat is returned for WAV variants the codec cannot read.
var ErrUnsupportedFormat = errors.New("pcm: unsupported wav format")

type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// ReadFile decodes a WAV file.
func ReadFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return buf, nil
}

// Read decodes a RIFF/WAVE stream.
func Read(r io.Reader) (*Buffer, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("pcm: not a wav stream")
	}

	var (
		format    *wavFormat
		chunkHead [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunkHead[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.New("pcm: wav has no data chunk")
			}
			return nil, err
		}
		id := string(chunkHead[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHead[4:8]))
		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			parsed, err := parseFormat(body)
			if err != nil {
				return nil, err
			}
			format = parsed
		case "data":
			if format == nil {
				return nil, errors.New("pcm: data chunk before fmt chunk")
			}
			return readSamples(io.LimitReader(r, size), *format, size)
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
		}
	}
}

func parseFormat(body []byte) (*wavFormat, error) {
	if len(body) < 16 {
		return nil, errors.New("pcm: fmt chunk too short")
	}
	f := &wavFormat{
		audioFormat:   binary.LittleEndian.Uint16(body[0:2]),
		channels:      int(binary.LittleEndian.Uint16(body[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
	}
	if f.audioFormat == formatExtensible && len(body) >= 26 {
		// First two bytes of the sub-format GUID carry the real format tag.
		f.audioFormat = binary.LittleEndian.Uint16(body[24:26])
	}
	if f.channels <= 0 || f.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, f.channels, f.sampleRate)
	}
	switch {
	case f.audioFormat == formatPCM && (f.bitsPerSample == 16 || f.bitsPerSample == 24 || f.bitsPerSample == 32):
	case f.audioFormat == formatFloat && f.bitsPerSample == 32:
	default:
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedFormat, f.audioFormat, f.bitsPerSample)
	}
	return f, nil
}

func readSamples(r io.Reader, f wavFormat, size int64) (*Buffer, error) {
	bytesPerSample := f.bitsPerSample / 8
	frameBytes := bytesPerSample * f.channels
	frames := int(size / int64(frameBytes))
	buf := New(f.sampleRate, f.channels, frames)

	raw := make([]byte, frameBytes*4096)
	frame := 0
	for frame < frames {
		want := min(frames-frame, 4096) * frameBytes
		n, err := io.ReadFull(r, raw[:want])
		got := n / frameBytes
		for i := 0; i < got; i++ {
			base := i * frameBytes
			for ch := 0; ch < f.channels; ch++ {
				buf.Data[ch][frame+i] = decodeSample(raw[base+ch*bytesPerSample:], f)
			}
		}
		frame += got
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	if frame < frames {
		for ch := range buf.Data {
			buf.Data[ch] = buf.Data[ch][:frame]
		}
	}
	return buf, nil
}

func decodeSample(b []byte, f wavFormat) float64 {
	switch {
	case f.audioFormat == formatFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case f.bitsPerSample == 16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case f.bitsPerSample == 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
		return float64(v) / 8388608
	default:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
}

// WriteFile encodes buf to path atomically.
func WriteFile(path string, buf *Buffer, enc Encoding) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Write(w, buf, enc); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Write encodes buf as a canonical 44-byte-header WAV stream.
func Write(w io.Writer, buf *Buffer, enc Encoding) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	channels := buf.NumChannels()
	frames := buf.Frames()
	bits, tag := 16, uint16(formatPCM)
	if enc == Float32 {
		bits, tag = 32, formatFloat
	}
	blockAlign := channels * bits / 8
	dataSize := frames * blockAlign

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], tag)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(buf.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bits))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	if _, err := w.Write(header); err != nil {
		return err
	}

	frame := make([]byte, blockAlign)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := buf.Data[ch][i]
			if enc == Float32 {
				binary.LittleEndian.PutUint32(frame[ch*4:], math.Float32bits(float32(v)))
				continue
			}
			binary.LittleEndian.PutUint16(frame[ch*2:], uint16(quantize16(v)))
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

func quantize16(v float64) int16 {
	s := math.Round(v * 32767)
	switch {
	case s > 32767:
		return 32767
	case s < -32768:
		return -32768
	default:
		return int16(s)
	}
}
