// Package vp9 parses the uncompressed header of VP9 frames.
package vp9

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

// Errors.
var (
	ErrInvalidFrameMarker = errors.New("invalid frame marker")
	ErrInvalidSyncCode    = errors.New("invalid sync code")
	ErrReservedBit        = errors.New("reserved bit set")
)

// ColorSpaceRGB sRGB color space.
const ColorSpaceRGB = 7

// Header uncompressed frame header, fields after the frame type are
// only parsed for key frames and intra-only frames.
type Header struct {
	Profile uint8

	ShowExistingFrame bool
	FrameToShow       uint8

	KeyFrame       bool
	ShowFrame      bool
	ErrorResilient bool
	IntraOnly      bool

	BitDepth     uint8
	ColorSpace   uint8
	FullRange    bool
	SubsamplingX bool
	SubsamplingY bool

	// Zero when the frame size isn't coded.
	Width        uint32
	Height       uint32
	RenderWidth  uint32
	RenderHeight uint32
}

// HasSize reports whether the frame carries its own size.
func (h Header) HasSize() bool {
	return h.Width != 0
}

// Is420 reports whether the frame uses 4:2:0 subsampling.
func (h Header) Is420() bool {
	return h.SubsamplingX && h.SubsamplingY
}

type reader struct {
	br  *bitio.Reader
	err error
}

func (r *reader) bits(n uint8) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.br.ReadBits(n)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *reader) flag() bool {
	return r.bits(1) == 1
}

// ParseHeader parses the uncompressed header of a single frame.
func ParseHeader(data []byte) (*Header, error) {
	r := &reader{br: bitio.NewReader(bytes.NewReader(data))}
	var h Header

	if marker := r.bits(2); r.err == nil && marker != 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameMarker, marker)
	}

	low := r.bits(1)
	high := r.bits(1)
	h.Profile = uint8(high<<1 | low)
	if h.Profile == 3 && r.flag() {
		return nil, fmt.Errorf("%w: profile", ErrReservedBit)
	}

	h.ShowExistingFrame = r.flag()
	if h.ShowExistingFrame {
		h.FrameToShow = uint8(r.bits(3))
		return finish(&h, r.err)
	}

	h.KeyFrame = r.bits(1) == 0
	h.ShowFrame = r.flag()
	h.ErrorResilient = r.flag()

	if h.KeyFrame {
		if err := r.syncCode(); err != nil {
			return nil, err
		}
		if err := r.colorConfig(&h); err != nil {
			return nil, err
		}
		r.frameSize(&h)
		return finish(&h, r.err)
	}

	if !h.ShowFrame {
		h.IntraOnly = r.flag()
	}
	if !h.ErrorResilient {
		r.bits(2) // Reset frame context.
	}
	if !h.IntraOnly {
		return finish(&h, r.err)
	}

	if err := r.syncCode(); err != nil {
		return nil, err
	}
	if h.Profile > 0 {
		if err := r.colorConfig(&h); err != nil {
			return nil, err
		}
	} else {
		h.BitDepth = 8
		h.SubsamplingX = true
		h.SubsamplingY = true
	}
	r.bits(8) // Refresh frame flags.
	r.frameSize(&h)
	return finish(&h, r.err)
}

func finish(h *Header, err error) (*Header, error) {
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return h, nil
}

func (r *reader) syncCode() error {
	code := r.bits(24)
	if r.err != nil {
		return fmt.Errorf("read sync code: %w", r.err)
	}
	if code != 0x498342 {
		return fmt.Errorf("%w: 0x%06x", ErrInvalidSyncCode, code)
	}
	return nil
}

func (r *reader) colorConfig(h *Header) error {
	h.BitDepth = 8
	if h.Profile >= 2 {
		h.BitDepth = 10
		if r.flag() {
			h.BitDepth = 12
		}
	}

	h.ColorSpace = uint8(r.bits(3))
	if h.ColorSpace != ColorSpaceRGB {
		h.FullRange = r.flag()
		if h.Profile == 1 || h.Profile == 3 {
			h.SubsamplingX = r.flag()
			h.SubsamplingY = r.flag()
			if r.flag() {
				return fmt.Errorf("%w: color config", ErrReservedBit)
			}
		} else {
			h.SubsamplingX = true
			h.SubsamplingY = true
		}
	} else {
		h.FullRange = true
		if h.Profile == 1 || h.Profile == 3 {
			if r.flag() {
				return fmt.Errorf("%w: color config", ErrReservedBit)
			}
		}
	}
	return r.err
}

func (r *reader) frameSize(h *Header) {
	h.Width = uint32(r.bits(16)) + 1
	h.Height = uint32(r.bits(16)) + 1

	h.RenderWidth, h.RenderHeight = h.Width, h.Height
	if r.flag() {
		h.RenderWidth = uint32(r.bits(16)) + 1
		h.RenderHeight = uint32(r.bits(16)) + 1
	}
	if r.err != nil {
		h.Width, h.Height = 0, 0
	}
}
