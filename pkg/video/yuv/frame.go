// Package yuv planar 4:2:0 frame buffers.
package yuv

import (
	"errors"
	"fmt"
	"image"
)

// Errors.
var (
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrOddDimensions     = errors.New("dimensions must be even")
)

// Frame is a reusable I420 frame buffer. Planes are tightly
// packed and sized once, a frame with a different size
// requires a new buffer.
type Frame struct {
	width  int
	height int

	y []uint8
	u []uint8
	v []uint8
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidDimensions, width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: %vx%v", ErrOddDimensions, width, height)
	}

	lumaSize := mul3NonNeg(1, width, height)
	if lumaSize < 0 {
		return nil, fmt.Errorf("%w: %vx%v overflows", ErrInvalidDimensions, width, height)
	}
	chromaSize := (width / 2) * (height / 2)

	return &Frame{
		width:  width,
		height: height,
		y:      make([]uint8, lumaSize),
		u:      make([]uint8, chromaSize),
		v:      make([]uint8, chromaSize),
	}, nil
}

// Width luma width.
func (f *Frame) Width() int { return f.width }

// Height luma height.
func (f *Frame) Height() int { return f.height }

// ChromaWidth width of the U and V planes.
func (f *Frame) ChromaWidth() int { return f.width / 2 }

// ChromaHeight height of the U and V planes.
func (f *Frame) ChromaHeight() int { return f.height / 2 }

// YPlane returns the luma plane. The slice is owned by the frame.
func (f *Frame) YPlane() []uint8 { return f.y }

// UPlane returns the Cb plane. The slice is owned by the frame.
func (f *Frame) UPlane() []uint8 { return f.u }

// VPlane returns the Cr plane. The slice is owned by the frame.
func (f *Frame) VPlane() []uint8 { return f.v }

// Y returns the luma sample at (x, y).
// Panics if the coordinates are out of range.
func (f *Frame) Y(x, y int) uint8 {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		panic(fmt.Sprintf("yuv: luma coordinate (%v, %v) out of range", x, y))
	}
	return f.y[y*f.width+x]
}

// UV returns the chroma samples at (x, y) in chroma coordinates.
// Panics if the coordinates are out of range.
func (f *Frame) UV(x, y int) (uint8, uint8) {
	cw := f.width / 2
	if x < 0 || x >= cw || y < 0 || y >= f.height/2 {
		panic(fmt.Sprintf("yuv: chroma coordinate (%v, %v) out of range", x, y))
	}
	i := y*cw + x
	return f.u[i], f.v[i]
}

// Fill sets every sample in each plane.
func (f *Frame) Fill(y, u, v uint8) {
	fill(f.y, y)
	fill(f.u, u)
	fill(f.v, v)
}

func fill(plane []uint8, value uint8) {
	if len(plane) == 0 {
		return
	}
	plane[0] = value
	for i := 1; i < len(plane); i *= 2 {
		copy(plane[i:], plane[:i])
	}
}

// YCbCr returns a view of the frame as an image.YCbCr.
// The image shares memory with the frame.
func (f *Frame) YCbCr() *image.YCbCr {
	return &image.YCbCr{
		Y:              f.y,
		Cb:             f.u,
		Cr:             f.v,
		YStride:        f.width,
		CStride:        f.width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.width, f.height),
	}
}
