// Package vpxmock scripted in-memory engine for testing.
package vpxmock

import (
	"ivfplay/pkg/video/vpx"
)

// PaddingByte fills the bytes between the row width and the stride.
const PaddingByte = 0xEE

// Image in-memory image with optional row padding.
type Image struct {
	Fmt     vpx.PixelFormat
	W, H    int
	Planes  [3][]byte
	Strides [3]int
}

// NewImage allocates an I420 image where padding bytes are set to PaddingByte.
func NewImage(width, height, stride, chromaStride int) *Image {
	img := &Image{
		Fmt:     vpx.PixelFormatI420,
		W:       width,
		H:       height,
		Strides: [3]int{stride, chromaStride, chromaStride},
	}
	img.Planes[0] = make([]byte, stride*height)
	img.Planes[1] = make([]byte, chromaStride*(height/2))
	img.Planes[2] = make([]byte, chromaStride*(height/2))
	for _, p := range img.Planes {
		for i := range p {
			p[i] = PaddingByte
		}
	}
	return img
}

// Fill sets every sample inside the visible area using fn.
func (i *Image) Fill(fn func(plane, x, y int) byte) *Image {
	for n := 0; n < 3; n++ {
		w, h := i.W, i.H
		if n > 0 {
			w, h = w/2, h/2
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i.Planes[n][y*i.Strides[n]+x] = fn(n, x, y)
			}
		}
	}
	return i
}

// Format implements vpx.Image.
func (i *Image) Format() vpx.PixelFormat { return i.Fmt }

// Width implements vpx.Image.
func (i *Image) Width() int { return i.W }

// Height implements vpx.Image.
func (i *Image) Height() int { return i.H }

// Plane implements vpx.Image.
func (i *Image) Plane(n int) []byte { return i.Planes[n] }

// Stride implements vpx.Image.
func (i *Image) Stride(n int) int { return i.Strides[n] }

// Engine releases scripted images. Submission n releases
// Images[n] unless Errs[n] is set.
type Engine struct {
	Images [][]vpx.Image
	Errs   []error

	// Copies of every submitted payload.
	Submitted [][]byte
	Closed    bool

	queue []vpx.Image
}

// Decode implements vpx.Engine.
func (e *Engine) Decode(data []byte) error {
	if e.Closed {
		return vpx.ErrClosed
	}
	n := len(e.Submitted)
	e.Submitted = append(e.Submitted, append([]byte{}, data...))
	e.queue = nil

	if n < len(e.Errs) && e.Errs[n] != nil {
		return e.Errs[n]
	}
	if n < len(e.Images) {
		e.queue = append(e.queue, e.Images[n]...)
	}
	return nil
}

// NextImage implements vpx.Engine.
func (e *Engine) NextImage() (vpx.Image, bool) {
	if len(e.queue) == 0 {
		return nil, false
	}
	img := e.queue[0]
	e.queue = e.queue[1:]
	return img, true
}

// Close implements vpx.Engine.
func (e *Engine) Close() error {
	e.Closed = true
	return nil
}

// Pending returns the number of images not yet drained.
func (e *Engine) Pending() int {
	return len(e.queue)
}
