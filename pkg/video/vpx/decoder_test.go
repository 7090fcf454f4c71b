package vpx_test

import (
	"bytes"
	"errors"
	"testing"

	"ivfplay/pkg/video/vpx"
	"ivfplay/pkg/video/vpx/vpxmock"
	"ivfplay/pkg/video/yuv"

	"github.com/stretchr/testify/require"
)

func pattern(plane, x, y int) byte {
	return byte(plane*64 + y*8 + x)
}

func newFrame(t *testing.T, width, height int) *yuv.Frame {
	t.Helper()
	f, err := yuv.NewFrame(width, height)
	require.NoError(t, err)
	return f
}

func snapshot(f *yuv.Frame) [3][]byte {
	return [3][]byte{
		append([]byte{}, f.YPlane()...),
		append([]byte{}, f.UPlane()...),
		append([]byte{}, f.VPlane()...),
	}
}

func TestCopyImage(t *testing.T) {
	t.Run("roundTrip", func(t *testing.T) {
		const w, h = 6, 4
		img := vpxmock.NewImage(w, h, w, w/2).Fill(pattern)
		f := newFrame(t, w, h)

		require.NoError(t, vpx.CopyImage(img, f))

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				require.Equal(t, pattern(0, x, y), f.Y(x, y))
			}
		}
		for y := 0; y < h/2; y++ {
			for x := 0; x < w/2; x++ {
				u, v := f.UV(x, y)
				require.Equal(t, pattern(1, x, y), u)
				require.Equal(t, pattern(2, x, y), v)
			}
		}

		// Last valid coordinates.
		require.Equal(t, pattern(0, w-1, h-1), f.Y(w-1, h-1))
		u, v := f.UV(w/2-1, h/2-1)
		require.Equal(t, pattern(1, w/2-1, h/2-1), u)
		require.Equal(t, pattern(2, w/2-1, h/2-1), v)
	})
	t.Run("strideExcludesPadding", func(t *testing.T) {
		const w, h = 8, 6
		img := vpxmock.NewImage(w, h, w+24, w/2+13).Fill(pattern)
		f := newFrame(t, w, h)

		require.NoError(t, vpx.CopyImage(img, f))

		for _, plane := range [][]byte{f.YPlane(), f.UPlane(), f.VPlane()} {
			require.Equal(t, -1, bytes.IndexByte(plane, vpxmock.PaddingByte))
		}
		require.Equal(t, pattern(0, 0, 1), f.Y(0, 1))
		require.Equal(t, pattern(0, w-1, h-1), f.Y(w-1, h-1))
		u, v := f.UV(w/2-1, h/2-1)
		require.Equal(t, pattern(1, w/2-1, h/2-1), u)
		require.Equal(t, pattern(2, w/2-1, h/2-1), v)
	})
	t.Run("tightLastRow", func(t *testing.T) {
		// Engines may omit the padding after the last row.
		const w, h = 4, 4
		img := vpxmock.NewImage(w, h, 16, 8).Fill(pattern)
		img.Planes[0] = img.Planes[0][:16*(h-1)+w]
		img.Planes[1] = img.Planes[1][:8*(h/2-1)+w/2]
		img.Planes[2] = img.Planes[2][:8*(h/2-1)+w/2]
		f := newFrame(t, w, h)

		require.NoError(t, vpx.CopyImage(img, f))
		require.Equal(t, pattern(0, w-1, h-1), f.Y(w-1, h-1))
	})
	t.Run("overwrite", func(t *testing.T) {
		const w, h = 8, 4
		f := newFrame(t, w, h)

		white := vpxmock.NewImage(w, h, w, w/2).Fill(func(int, int, int) byte { return 0xFF })
		require.NoError(t, vpx.CopyImage(white, f))
		require.Equal(t, bytes.Repeat([]byte{0xFF}, w*h), f.YPlane())

		black := vpxmock.NewImage(w, h, w+8, w/2+8).Fill(func(int, int, int) byte { return 0x00 })
		require.NoError(t, vpx.CopyImage(black, f))

		for _, plane := range [][]byte{f.YPlane(), f.UPlane(), f.VPlane()} {
			require.Equal(t, -1, bytes.IndexByte(plane, 0xFF))
		}
	})
	t.Run("dimensionMismatch", func(t *testing.T) {
		const w, h = 8, 4
		f := newFrame(t, w, h)
		f.Fill(7, 8, 9)
		before := snapshot(f)

		for _, img := range []*vpxmock.Image{
			vpxmock.NewImage(w+2, h, w+2, (w+2)/2),
			vpxmock.NewImage(w, h+2, w, w/2),
			vpxmock.NewImage(w-2, h-2, w, w/2),
		} {
			img.Fill(pattern)
			err := vpx.CopyImage(img, f)
			require.ErrorIs(t, err, vpx.ErrDimensionMismatch)
			require.Equal(t, before, snapshot(f))
		}
	})
	t.Run("unsupportedPixelFormat", func(t *testing.T) {
		const w, h = 4, 4
		f := newFrame(t, w, h)
		before := snapshot(f)

		for _, format := range []vpx.PixelFormat{
			vpx.PixelFormatI444,
			vpx.PixelFormatYV12,
			vpx.PixelFormatI42016,
			vpx.PixelFormatNone,
		} {
			img := vpxmock.NewImage(w, h, w, w/2).Fill(pattern)
			img.Fmt = format

			err := vpx.CopyImage(img, f)
			require.ErrorIs(t, err, vpx.ErrUnsupportedPixelFormat)
			require.Equal(t, before, snapshot(f))
		}
	})
	t.Run("shortPlane", func(t *testing.T) {
		const w, h = 4, 4
		f := newFrame(t, w, h)
		before := snapshot(f)

		img := vpxmock.NewImage(w, h, w, w/2).Fill(pattern)
		img.Planes[2] = img.Planes[2][:len(img.Planes[2])-1]

		err := vpx.CopyImage(img, f)
		require.ErrorIs(t, err, vpx.ErrShortPlane)
		require.Equal(t, before, snapshot(f))
	})
	t.Run("strideLessThanWidth", func(t *testing.T) {
		const w, h = 4, 4
		f := newFrame(t, w, h)
		before := snapshot(f)

		img := vpxmock.NewImage(w, h, w, w/2).Fill(pattern)
		img.Strides[0] = w - 1

		err := vpx.CopyImage(img, f)
		require.ErrorIs(t, err, vpx.ErrShortPlane)
		require.Equal(t, before, snapshot(f))
	})
}

func TestDecoder(t *testing.T) {
	const w, h = 4, 2

	solid := func(v byte) vpx.Image {
		return vpxmock.NewImage(w, h, w+4, w/2+4).Fill(func(int, int, int) byte { return v })
	}

	t.Run("drain", func(t *testing.T) {
		engine := &vpxmock.Engine{
			Images: [][]vpx.Image{
				{},
				{solid(1), solid(2)},
			},
		}
		d := vpx.NewDecoder(engine)
		f := newFrame(t, w, h)

		n, err := d.DecodeInto([]byte{0xa}, f)
		require.NoError(t, err)
		require.Equal(t, 0, n)

		n, err = d.DecodeInto([]byte{0xb, 0xc}, f)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		// Last image wins.
		require.Equal(t, bytes.Repeat([]byte{2}, w*h), f.YPlane())
		require.Equal(t, [][]byte{{0xa}, {0xb, 0xc}}, engine.Submitted)
	})
	t.Run("nextFrame", func(t *testing.T) {
		engine := &vpxmock.Engine{
			Images: [][]vpx.Image{{solid(3), solid(4)}},
		}
		d := vpx.NewDecoder(engine)
		f := newFrame(t, w, h)

		require.NoError(t, d.Decode([]byte{1}))

		ok, err := d.NextFrame(f)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint8(3), f.Y(0, 0))

		ok, err = d.NextFrame(f)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint8(4), f.Y(0, 0))

		ok, err = d.NextFrame(f)
		require.NoError(t, err)
		require.False(t, ok)
	})
	t.Run("decodeFailed", func(t *testing.T) {
		engine := &vpxmock.Engine{
			Images: [][]vpx.Image{{solid(5)}},
			Errs:   []error{&vpx.DecodeFailedError{Code: 7}},
		}
		d := vpx.NewDecoder(engine)
		f := newFrame(t, w, h)

		n, err := d.DecodeInto([]byte{1}, f)
		require.ErrorIs(t, err, vpx.ErrDecodeFailed)
		require.Equal(t, 0, n)

		var decodeErr *vpx.DecodeFailedError
		require.True(t, errors.As(err, &decodeErr))
		require.Equal(t, 7, decodeErr.Code)
		require.Equal(t, "decode failed: codec error 7", err.Error())

		// No images consumed.
		require.Equal(t, make([]byte, w*h), f.YPlane())
	})
	t.Run("engineError", func(t *testing.T) {
		engine := &vpxmock.Engine{
			Errs: []error{errors.New("mock")},
		}
		d := vpx.NewDecoder(engine)

		err := d.Decode(nil)
		require.ErrorIs(t, err, vpx.ErrDecodeFailed)

		var decodeErr *vpx.DecodeFailedError
		require.True(t, errors.As(err, &decodeErr))
		require.Equal(t, -1, decodeErr.Code)
		require.Equal(t, "mock", decodeErr.Detail)
	})
	t.Run("copyError", func(t *testing.T) {
		engine := &vpxmock.Engine{
			Images: [][]vpx.Image{{vpxmock.NewImage(w+2, h, w+2, w/2+1)}},
		}
		d := vpx.NewDecoder(engine)
		f := newFrame(t, w, h)

		_, err := d.DecodeInto([]byte{1}, f)
		require.ErrorIs(t, err, vpx.ErrDimensionMismatch)
	})
	t.Run("undrainedDiscarded", func(t *testing.T) {
		engine := &vpxmock.Engine{
			Images: [][]vpx.Image{{solid(1), solid(2)}},
		}
		d := vpx.NewDecoder(engine)
		f := newFrame(t, w, h)

		require.NoError(t, d.Decode([]byte{1}))
		require.Equal(t, 2, engine.Pending())

		require.NoError(t, d.Decode([]byte{2}))
		ok, err := d.NextFrame(f)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, make([]byte, w*h), f.YPlane())
	})
	t.Run("close", func(t *testing.T) {
		engine := &vpxmock.Engine{}
		d := vpx.NewDecoder(engine)
		require.NoError(t, d.Close())
		require.True(t, engine.Closed)
		require.ErrorIs(t, d.Decode([]byte{1}), vpx.ErrDecodeFailed)
	})
}

func TestPixelFormatString(t *testing.T) {
	require.Equal(t, "i420", vpx.PixelFormatI420.String())
	require.Equal(t, "i444", vpx.PixelFormatI444.String())
	require.Equal(t, "0x42", vpx.PixelFormat(0x42).String())
}
