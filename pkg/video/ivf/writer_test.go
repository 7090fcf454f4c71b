package ivf

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	out := &bytes.Buffer{}

	w, err := NewWriter(out, testHeader)
	require.NoError(t, err)

	require.NoError(t, w.WriteFrame(0, []byte{1, 2, 3}))
	require.NoError(t, w.WriteFrame(1, []byte{4}))
	require.NoError(t, w.WriteFrame(255, nil))
	require.Equal(t, uint32(3), w.FramesWritten())

	expected := append([]byte{}, testHeaderBytes...)
	expected = append(expected,
		3, 0, 0, 0, // Size.
		0, 0, 0, 0, 0, 0, 0, 0, // Timestamp.
		1, 2, 3, // Data.

		1, 0, 0, 0, // Size.
		1, 0, 0, 0, 0, 0, 0, 0, // Timestamp.
		4, // Data.

		0, 0, 0, 0, // Size.
		0xff, 0, 0, 0, 0, 0, 0, 0, // Timestamp.
	)
	require.Equal(t, expected, out.Bytes())

	d, err := NewDemuxer(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	require.Equal(t, testHeader, d.Header())

	n := 0
	for {
		_, err := d.NextFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 3, n)
}

func TestWriterFrameTooLarge(t *testing.T) {
	out := &bytes.Buffer{}
	w, err := NewWriter(out, testHeader)
	require.NoError(t, err)

	err = w.WriteFrame(0, make([]byte, MaxFrameSize+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Equal(t, HeaderSize, out.Len())
	require.Equal(t, uint32(0), w.FramesWritten())
}

func TestNewWriterSizeTooLarge(t *testing.T) {
	cases := map[string]Header{
		"width":  {Width: 1 << 16, Height: 480, TimeBaseNum: 1, TimeBaseDenom: 30},
		"height": {Width: 640, Height: 70000, TimeBaseNum: 1, TimeBaseDenom: 30},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			out := &bytes.Buffer{}
			_, err := NewWriter(out, header)
			require.ErrorIs(t, err, ErrSizeTooLarge)
			require.Zero(t, out.Len())
		})
	}

	out := &bytes.Buffer{}
	_, err := NewWriter(out, Header{Width: math.MaxUint16, Height: math.MaxUint16})
	require.NoError(t, err)

	d, err := NewDemuxer(out)
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint16), d.Header().Width)
}
