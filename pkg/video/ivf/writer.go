package ivf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer writes frames in the IVF format.
type Writer struct {
	out         io.Writer
	frameHeader []byte

	framesWritten uint32
}

// NewWriter creates a new Writer and writes the header.
// FrameCount is written as is, the caller must know it in advance.
func NewWriter(out io.Writer, header Header) (*Writer, error) {
	if header.Width > math.MaxUint16 || header.Height > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %vx%v", ErrSizeTooLarge, header.Width, header.Height)
	}
	if _, err := out.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{
		out:         out,
		frameHeader: make([]byte, FrameHeaderSize),
	}, nil
}

// WriteFrame writes a single frame.
func (w *Writer) WriteFrame(timestamp uint64, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(data))
	}

	binary.LittleEndian.PutUint32(w.frameHeader[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint64(w.frameHeader[4:12], timestamp)

	if _, err := w.out.Write(w.frameHeader); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("write frame data: %w", err)
	}
	w.framesWritten++
	return nil
}

// FramesWritten returns the number of frames written.
func (w *Writer) FramesWritten() uint32 {
	return w.framesWritten
}
