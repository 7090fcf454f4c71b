// Package vpx copies images from a VP9 decoding engine into yuv frames.
package vpx

import (
	"errors"
	"fmt"

	"ivfplay/pkg/video/yuv"
)

// PixelFormat image format, values match vpx_img_fmt_t.
type PixelFormat uint32

// Pixel formats.
const (
	PixelFormatNone    PixelFormat = 0
	PixelFormatYV12    PixelFormat = 0x301
	PixelFormatI420    PixelFormat = 0x102
	PixelFormatI422    PixelFormat = 0x105
	PixelFormatI444    PixelFormat = 0x106
	PixelFormatI440    PixelFormat = 0x107
	PixelFormatNV12    PixelFormat = 0x109
	PixelFormatI42016  PixelFormat = 0x902
	formatHighBitDepth PixelFormat = 0x800
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatNone:
		return "none"
	case PixelFormatYV12:
		return "yv12"
	case PixelFormatI420:
		return "i420"
	case PixelFormatI422:
		return "i422"
	case PixelFormatI444:
		return "i444"
	case PixelFormatI440:
		return "i440"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatI42016:
		return "i42016"
	}
	return fmt.Sprintf("0x%x", uint32(f))
}

// Image decoded image owned by the engine. Only valid
// until the next call to Engine.Decode.
type Image interface {
	Format() PixelFormat
	Width() int
	Height() int

	// Plane returns plane n, 0=Y 1=U 2=V, starting at the first sample.
	Plane(n int) []byte

	// Stride returns the distance in bytes between rows in plane n.
	Stride(n int) int
}

// Engine VP9 decoding engine.
type Engine interface {
	// Decode submits a compressed frame. Decoded images are
	// available through NextImage until the next call.
	Decode(data []byte) error

	// NextImage returns the next decoded image, false when there are none left.
	NextImage() (Image, bool)

	Close() error
}

// Errors.
var (
	ErrDecodeFailed           = errors.New("decode failed")
	ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrShortPlane             = errors.New("plane is too short")
	ErrInitFailed             = errors.New("could not initialize decoder")
	ErrLibVPXUnavailable      = errors.New("libvpx unavailable")
	ErrClosed                 = errors.New("engine closed")
)

// DecodeFailedError the engine rejected a frame.
type DecodeFailedError struct {
	Code   int
	Detail string
}

func (e *DecodeFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("decode failed: codec error %d", e.Code)
	}
	return fmt.Sprintf("decode failed: codec error %d: %s", e.Code, e.Detail)
}

// Is makes errors.Is(err, ErrDecodeFailed) work.
func (e *DecodeFailedError) Is(target error) bool {
	return target == ErrDecodeFailed
}

// Decoder feeds compressed frames to an engine and
// copies the decoded images into caller owned frames.
// Not safe for concurrent use.
type Decoder struct {
	engine Engine

	// Images are left from the previous submission.
	pending bool
}

// NewDecoder returns a decoder using engine.
func NewDecoder(engine Engine) *Decoder {
	return &Decoder{engine: engine}
}

// Decode submits a compressed frame to the engine. Images
// not drained from the previous submission are discarded.
func (d *Decoder) Decode(data []byte) error {
	if d.pending {
		for {
			if _, ok := d.engine.NextImage(); !ok {
				break
			}
		}
		d.pending = false
	}

	if err := d.engine.Decode(data); err != nil {
		var decodeErr *DecodeFailedError
		if errors.As(err, &decodeErr) {
			return decodeErr
		}
		return &DecodeFailedError{Code: -1, Detail: err.Error()}
	}
	d.pending = true
	return nil
}

// NextFrame copies the next decoded image into dst.
// Returns false when all images have been drained.
func (d *Decoder) NextFrame(dst *yuv.Frame) (bool, error) {
	img, ok := d.engine.NextImage()
	if !ok {
		d.pending = false
		return false, nil
	}
	if err := CopyImage(img, dst); err != nil {
		return false, err
	}
	return true, nil
}

// DecodeInto submits a frame and drains every decoded image into dst.
// Each image overwrites the previous one. Returns the number of images.
func (d *Decoder) DecodeInto(data []byte, dst *yuv.Frame) (int, error) {
	if err := d.Decode(data); err != nil {
		return 0, err
	}
	n := 0
	for {
		ok, err := d.NextFrame(dst)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// Close closes the engine.
func (d *Decoder) Close() error {
	return d.engine.Close()
}

type planeCopy struct {
	dst    []uint8
	width  int
	height int
}

// CopyImage copies an I420 image into dst. The image may have padded
// rows, dst is always tightly packed. dst is left unmodified on error.
func CopyImage(img Image, dst *yuv.Frame) error {
	if format := img.Format(); format != PixelFormatI420 {
		return fmt.Errorf("%w: %v", ErrUnsupportedPixelFormat, format)
	}

	width, height := img.Width(), img.Height()
	if width != dst.Width() || height != dst.Height() {
		return fmt.Errorf("%w: image %vx%v, frame %vx%v",
			ErrDimensionMismatch, width, height, dst.Width(), dst.Height())
	}

	planes := [3]planeCopy{
		{dst: dst.YPlane(), width: dst.Width(), height: dst.Height()},
		{dst: dst.UPlane(), width: dst.ChromaWidth(), height: dst.ChromaHeight()},
		{dst: dst.VPlane(), width: dst.ChromaWidth(), height: dst.ChromaHeight()},
	}

	// Validate every plane before writing anything.
	for i, p := range planes {
		if err := checkPlane(img.Plane(i), img.Stride(i), p.width, p.height); err != nil {
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}

	for i, p := range planes {
		copyPlane(p.dst, img.Plane(i), img.Stride(i), p.width, p.height)
	}
	return nil
}

func checkPlane(src []byte, stride int, width int, height int) error {
	if stride < width {
		return fmt.Errorf("%w: stride %v is less than width %v", ErrShortPlane, stride, width)
	}
	need := stride*(height-1) + width
	if len(src) < need {
		return fmt.Errorf("%w: got %v bytes, need %v", ErrShortPlane, len(src), need)
	}
	return nil
}

func copyPlane(dst []uint8, src []byte, stride int, width int, height int) {
	for row := 0; row < height; row++ {
		start := row * stride
		copy(dst[row*width:(row+1)*width], src[start:start+width])
	}
}
