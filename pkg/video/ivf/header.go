package ivf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"time"
	"unicode/utf8"
)

// Header sizes.
const (
	HeaderSize      = 32
	FrameHeaderSize = 12
)

// MaxFrameSize largest accepted frame payload. Guards against
// corrupted size fields causing huge allocations.
const MaxFrameSize = 8 * 1024 * 1024

var (
	signature = [4]byte{'D', 'K', 'I', 'F'}

	// CodecVP9 the only supported codec tag.
	CodecVP9 = [4]byte{'V', 'P', '9', '0'}
)

// Errors.
var (
	ErrMalformedHeader  = errors.New("malformed header")
	ErrMissingSignature = fmt.Errorf("%w: file does not begin with IVF signature", ErrMalformedHeader)
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrFrameTooLarge    = errors.New("frame is too large")
	ErrSizeTooLarge     = errors.New("width and height must fit in 16 bits")
)

// UnsupportedCodecError is returned when the codec tag isn't VP90.
type UnsupportedCodecError struct {
	Codec string
}

func (e *UnsupportedCodecError) Error() string {
	return fmt.Sprintf("file uses unsupported codec '%s'", e.Codec)
}

// Is makes errors.Is(err, ErrUnsupportedCodec) work.
func (e *UnsupportedCodecError) Is(target error) bool {
	return target == ErrUnsupportedCodec
}

// Header stream header.
type Header struct {
	Width         uint32
	Height        uint32
	TimeBaseNum   uint32
	TimeBaseDenom uint32
	FrameCount    uint32
}

// Duration converts a timestamp in time base units to a duration.
// Durations that don't fit in time.Duration saturate.
func (h Header) Duration(timestamp uint64) time.Duration {
	if h.TimeBaseDenom == 0 {
		return 0
	}
	const maxDuration = time.Duration(math.MaxInt64)

	// 128-bit ticks, secs = ticks / den.
	den := uint64(h.TimeBaseDenom)
	hi, lo := bits.Mul64(timestamp, uint64(h.TimeBaseNum))
	if hi >= den {
		return maxDuration
	}
	secs, rem := bits.Div64(hi, lo, den)

	// rem < den <= MaxUint32, can't overflow.
	nanos := rem * uint64(time.Second) / den
	if secs > (math.MaxInt64-nanos)/uint64(time.Second) {
		return maxDuration
	}
	return time.Duration(secs*uint64(time.Second) + nanos)
}

// Marshal header. Width and height are truncated to 16 bits,
// Writer rejects headers where that loses information.
func (h Header) Marshal() []byte {
	out := make([]byte, HeaderSize)

	copy(out[0:4], signature[:])
	binary.LittleEndian.PutUint16(out[4:6], 0) // Version.
	binary.LittleEndian.PutUint16(out[6:8], HeaderSize)
	copy(out[8:12], CodecVP9[:])
	binary.LittleEndian.PutUint16(out[12:14], uint16(h.Width))
	binary.LittleEndian.PutUint16(out[14:16], uint16(h.Height))
	binary.LittleEndian.PutUint32(out[16:20], h.TimeBaseDenom)
	binary.LittleEndian.PutUint32(out[20:24], h.TimeBaseNum)
	binary.LittleEndian.PutUint32(out[24:28], h.FrameCount)
	binary.LittleEndian.PutUint32(out[28:32], 0) // Reserved.

	return out
}

// Unmarshal header from reader.
func (h *Header) Unmarshal(r io.Reader) error {
	buf := make([]byte, HeaderSize)

	if _, err := io.ReadFull(r, buf[0:4]); err != nil {
		return fmt.Errorf("read signature: %w", err)
	}
	if [4]byte{buf[0], buf[1], buf[2], buf[3]} != signature {
		return ErrMissingSignature
	}

	if _, err := io.ReadFull(r, buf[4:12]); err != nil {
		return fmt.Errorf("read codec: %w", err)
	}
	codec := buf[8:12]
	if [4]byte{codec[0], codec[1], codec[2], codec[3]} != CodecVP9 {
		return &UnsupportedCodecError{Codec: codecString(codec)}
	}

	if _, err := io.ReadFull(r, buf[12:HeaderSize]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	h.Width = uint32(binary.LittleEndian.Uint16(buf[12:14]))
	h.Height = uint32(binary.LittleEndian.Uint16(buf[14:16]))
	h.TimeBaseDenom = binary.LittleEndian.Uint32(buf[16:20])
	h.TimeBaseNum = binary.LittleEndian.Uint32(buf[20:24])
	h.FrameCount = binary.LittleEndian.Uint32(buf[24:28])

	return nil
}

// Best effort, the tag is only used in the error message.
func codecString(codec []byte) string {
	if !utf8.Valid(codec) {
		return ""
	}
	return string(codec)
}
