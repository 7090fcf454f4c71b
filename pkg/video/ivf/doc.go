// Package ivf reads and writes VP9 streams in the IVF container.
package ivf

// IVF is a minimal container holding a single video stream.
// All fields are little-endian.
//
// header { // 32 bytes.
//   signature   [4]byte "DKIF"
//   version     uint16  ignored
//   headerSize  uint16  ignored
//   codec       [4]byte "VP90"
//   width       uint16
//   height      uint16
//   timeBaseDen uint32
//   timeBaseNum uint32
//   frameCount  uint32
//   reserved    uint32
// }
//
// frame { // 12 byte header followed by the payload.
//   size      uint32
//   timestamp uint64  in time base units.
//   data      [size]byte
// }
