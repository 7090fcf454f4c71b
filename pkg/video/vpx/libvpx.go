//go:build (linux || darwin) && !novpx

package vpx

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

const (
	vpxCodecOK = 0

	// VPX_DECODER_ABI_VERSION, 3 + VPX_CODEC_ABI_VERSION.
	vpxDecoderABIVersion = 3 + 4 + 5

	// Larger than sizeof(vpx_codec_ctx_t).
	vpxCodecCtxSize = 128
)

// vpxImage mirrors the leading fields of vpx_image_t.
type vpxImage struct {
	fmt          uint32
	cs           uint32
	colorRange   uint32
	w            uint32
	h            uint32
	bitDepth     uint32
	dW           uint32
	dH           uint32
	rW           uint32
	rH           uint32
	xChromaShift uint32
	yChromaShift uint32
	planes       [4]uintptr
	stride       [4]int32
}

var (
	libOnce sync.Once
	libErr  error

	vpxCodecVP9Dx       func() uintptr
	vpxCodecDecInitVer  func(ctx unsafe.Pointer, iface uintptr, cfg unsafe.Pointer, flags int, ver int32) int32
	vpxCodecDecode      func(ctx unsafe.Pointer, data unsafe.Pointer, size uint32, userPriv unsafe.Pointer, deadline int) int32
	vpxCodecGetFrame    func(ctx unsafe.Pointer, iter unsafe.Pointer) uintptr
	vpxCodecErrorDetail func(ctx unsafe.Pointer) string
	vpxCodecDestroy     func(ctx unsafe.Pointer) int32
)

func libNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{
			"libvpx.dylib",
			"/opt/homebrew/lib/libvpx.dylib",
			"/usr/local/lib/libvpx.dylib",
		}
	}
	return []string{
		"libvpx.so",
		"libvpx.so.9",
		"libvpx.so.8",
		"libvpx.so.7",
		"libvpx.so.6",
	}
}

// loadLib loads libvpx once, path overrides the search.
func loadLib(path string) error {
	libOnce.Do(func() {
		names := libNames()
		if path != "" {
			names = []string{path}
		}

		var err error
		for _, name := range names {
			var handle uintptr
			handle, err = purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err != nil {
				continue
			}
			if err = registerSymbols(handle); err != nil {
				purego.Dlclose(handle) //nolint:errcheck
				continue
			}
			return
		}
		libErr = fmt.Errorf("%w: %v", ErrLibVPXUnavailable, err)
	})
	return libErr
}

func registerSymbols(handle uintptr) error {
	symbols := []struct {
		fptr interface{}
		name string
	}{
		{&vpxCodecVP9Dx, "vpx_codec_vp9_dx"},
		{&vpxCodecDecInitVer, "vpx_codec_dec_init_ver"},
		{&vpxCodecDecode, "vpx_codec_decode"},
		{&vpxCodecGetFrame, "vpx_codec_get_frame"},
		{&vpxCodecErrorDetail, "vpx_codec_error_detail"},
		{&vpxCodecDestroy, "vpx_codec_destroy"},
	}
	for _, s := range symbols {
		sym, err := purego.Dlsym(handle, s.name)
		if err != nil {
			return fmt.Errorf("symbol %v: %w", s.name, err)
		}
		purego.RegisterFunc(s.fptr, sym)
	}
	return nil
}

// LibVPX VP9 engine backed by a dynamically loaded libvpx.
type LibVPX struct {
	ctx    []byte
	iter   uintptr
	closed bool
}

// NewLibVPX loads libvpx and initializes a VP9 decoder.
// An empty path searches the default library locations.
func NewLibVPX(path string) (*LibVPX, error) {
	if err := loadLib(path); err != nil {
		return nil, err
	}

	e := &LibVPX{ctx: make([]byte, vpxCodecCtxSize)}
	ret := vpxCodecDecInitVer(e.ctxPtr(), vpxCodecVP9Dx(), nil, 0, vpxDecoderABIVersion)
	if ret != vpxCodecOK {
		return nil, fmt.Errorf("%w: codec error %d", ErrInitFailed, ret)
	}
	return e, nil
}

func (e *LibVPX) ctxPtr() unsafe.Pointer {
	return unsafe.Pointer(&e.ctx[0])
}

// Decode implements Engine.
func (e *LibVPX) Decode(data []byte) error {
	if e.closed {
		return ErrClosed
	}

	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	ret := vpxCodecDecode(e.ctxPtr(), ptr, uint32(len(data)), nil, 0)
	runtime.KeepAlive(data)

	e.iter = 0
	if ret != vpxCodecOK {
		return &DecodeFailedError{
			Code:   int(ret),
			Detail: vpxCodecErrorDetail(e.ctxPtr()),
		}
	}
	return nil
}

// NextImage implements Engine.
func (e *LibVPX) NextImage() (Image, bool) {
	if e.closed {
		return nil, false
	}
	ptr := vpxCodecGetFrame(e.ctxPtr(), unsafe.Pointer(&e.iter))
	if ptr == 0 {
		return nil, false
	}
	return libvpxImage{img: (*vpxImage)(unsafe.Pointer(ptr))}, true //nolint:govet
}

// Close implements Engine.
func (e *LibVPX) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if ret := vpxCodecDestroy(e.ctxPtr()); ret != vpxCodecOK {
		return fmt.Errorf("destroy: codec error %d", ret)
	}
	return nil
}

type libvpxImage struct {
	img *vpxImage
}

func (i libvpxImage) Format() PixelFormat { return PixelFormat(i.img.fmt) }
func (i libvpxImage) Width() int          { return int(i.img.dW) }
func (i libvpxImage) Height() int         { return int(i.img.dH) }

func (i libvpxImage) Stride(n int) int {
	if n < 0 || n > 2 {
		return 0
	}
	return int(i.img.stride[n])
}

func (i libvpxImage) Plane(n int) []byte {
	if n < 0 || n > 2 || i.img.planes[n] == 0 {
		return nil
	}

	width, height := int(i.img.dW), int(i.img.dH)
	if n > 0 {
		width = (width + int(i.img.xChromaShift)) >> i.img.xChromaShift
		height = (height + int(i.img.yChromaShift)) >> i.img.yChromaShift
	}
	if PixelFormat(i.img.fmt)&formatHighBitDepth != 0 {
		width *= 2
	}

	stride := int(i.img.stride[n])
	if stride <= 0 || height == 0 {
		return nil
	}
	size := stride*(height-1) + width
	return unsafe.Slice((*byte)(unsafe.Pointer(i.img.planes[n])), size) //nolint:govet
}
