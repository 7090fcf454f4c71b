package ivf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame compressed frame. Data is only valid
// until the next call to Demuxer.NextFrame.
type Frame struct {
	Timestamp uint64
	Data      []byte
}

// Demuxer reads frames from an IVF stream.
// Not safe for concurrent use.
type Demuxer struct {
	in     io.Reader
	header Header

	framesEmitted uint32

	// Reused between calls.
	frameHeader []byte
	buf         []byte
	frame       Frame
}

// NewDemuxer reads the header and returns a new Demuxer.
func NewDemuxer(in io.Reader) (*Demuxer, error) {
	var header Header
	if err := header.Unmarshal(in); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", err)
	}

	return &Demuxer{
		in:          in,
		header:      header,
		frameHeader: make([]byte, FrameHeaderSize),
	}, nil
}

// Header returns the stream header.
func (d *Demuxer) Header() Header {
	return d.header
}

// FramesEmitted returns the number of frames read so far.
func (d *Demuxer) FramesEmitted() uint32 {
	return d.framesEmitted
}

// NextFrame reads the next frame. Returns io.EOF after the
// declared number of frames have been read. A stream that
// ends early returns io.ErrUnexpectedEOF. The returned frame
// is overwritten by the next call.
func (d *Demuxer) NextFrame() (*Frame, error) {
	if d.framesEmitted >= d.header.FrameCount {
		return nil, io.EOF
	}

	if _, err := io.ReadFull(d.in, d.frameHeader); err != nil {
		return nil, fmt.Errorf("read frame header: %w", truncated(err))
	}
	size := binary.LittleEndian.Uint32(d.frameHeader[0:4])
	timestamp := binary.LittleEndian.Uint64(d.frameHeader[4:12])

	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, size)
	}

	if cap(d.buf) < int(size) {
		d.buf = make([]byte, size)
	}
	d.buf = d.buf[:size]

	if _, err := io.ReadFull(d.in, d.buf); err != nil {
		return nil, fmt.Errorf("read frame data: %w", truncated(err))
	}

	d.framesEmitted++

	d.frame.Timestamp = timestamp
	d.frame.Data = d.buf
	return &d.frame, nil
}

// The frame count says more frames exist, io.EOF here means truncation.
func truncated(err error) error {
	if err == io.EOF { //nolint:errorlint
		return io.ErrUnexpectedEOF
	}
	return err
}
