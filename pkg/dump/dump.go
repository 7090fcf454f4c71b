// Package dump writes decoded frames to disk.
package dump

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"ivfplay/pkg/video/yuv"

	"github.com/klauspost/compress/zstd"
)

// Sink receives decoded frames. The frame is only
// valid for the duration of the call.
type Sink interface {
	WriteFrame(timestamp uint64, frame *yuv.Frame) error
	Close() error
}

// PNGSink saves every n-th frame as a png image.
type PNGSink struct {
	dir   string
	every int

	n     int
	saved int
	rgb   *yuv.RGB24
}

// NewPNGSink returns a sink that writes every n-th frame to dir.
func NewPNGSink(dir string, every int) (*PNGSink, error) {
	if every <= 0 {
		return nil, fmt.Errorf("every must be positive: %v", every)
	}
	return &PNGSink{dir: dir, every: every}, nil
}

// WriteFrame implements Sink.
func (s *PNGSink) WriteFrame(_ uint64, frame *yuv.Frame) error {
	n := s.n
	s.n++
	if n%s.every != 0 {
		return nil
	}

	rect := image.Rect(0, 0, frame.Width(), frame.Height())
	if s.rgb == nil || !s.rgb.Rect.Eq(rect) {
		s.rgb = yuv.NewRGB24(rect)
	}
	yuv.FromFrame(s.rgb, frame)

	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", n))
	if err := SaveImage(path, s.rgb); err != nil {
		return err
	}
	s.saved++
	return nil
}

// Saved returns the number of images written.
func (s *PNGSink) Saved() int {
	return s.saved
}

// Close implements Sink.
func (s *PNGSink) Close() error {
	return nil
}

// SaveImage saves image to path as png.
func SaveImage(path string, img image.Image) error {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %v: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode %v: %w", path, err)
	}
	return file.Close()
}

// RawSink writes packed I420 frames through a zstd encoder.
type RawSink struct {
	out io.Closer
	enc *zstd.Encoder
}

// NewRawSink returns a sink writing compressed frames to out.
// Closing the sink closes out.
func NewRawSink(out io.WriteCloser) (*RawSink, error) {
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &RawSink{out: out, enc: enc}, nil
}

// CreateRawSink creates the file at path and returns a sink writing to it.
func CreateRawSink(path string) (*RawSink, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %v: %w", path, err)
	}
	sink, err := NewRawSink(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return sink, nil
}

// WriteFrame implements Sink.
func (s *RawSink) WriteFrame(_ uint64, frame *yuv.Frame) error {
	for _, plane := range [][]uint8{frame.YPlane(), frame.UPlane(), frame.VPlane()} {
		if _, err := s.enc.Write(plane); err != nil {
			return fmt.Errorf("write plane: %w", err)
		}
	}
	return nil
}

// Close flushes the encoder and closes the output.
func (s *RawSink) Close() error {
	encErr := s.enc.Close()
	outErr := s.out.Close()
	if encErr != nil {
		return fmt.Errorf("close encoder: %w", encErr)
	}
	return outErr
}

// MultiSink writes frames to every sink.
type MultiSink []Sink

// WriteFrame implements Sink.
func (m MultiSink) WriteFrame(timestamp uint64, frame *yuv.Frame) error {
	for _, s := range m {
		if err := s.WriteFrame(timestamp, frame); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
