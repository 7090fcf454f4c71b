//go:build !(linux || darwin) || novpx

package vpx

// LibVPX is unavailable in this build.
type LibVPX struct{}

// NewLibVPX always returns ErrLibVPXUnavailable.
func NewLibVPX(string) (*LibVPX, error) {
	return nil, ErrLibVPXUnavailable
}

// Decode implements Engine.
func (*LibVPX) Decode([]byte) error { return ErrLibVPXUnavailable }

// NextImage implements Engine.
func (*LibVPX) NextImage() (Image, bool) { return nil, false }

// Close implements Engine.
func (*LibVPX) Close() error { return nil }
