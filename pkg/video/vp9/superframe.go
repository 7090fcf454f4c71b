package vp9

// Frames splits a superframe into its frames. Data
// without a superframe index is returned as a single frame.
func Frames(data []byte) [][]byte {
	sizes := superframeSizes(data)
	if sizes == nil {
		return [][]byte{data}
	}

	frames := make([][]byte, 0, len(sizes))
	pos := 0
	for _, size := range sizes {
		if size == 0 {
			continue
		}
		frames = append(frames, data[pos:pos+size])
		pos += size
	}
	return frames
}

// superframeSizes returns the frame sizes from the superframe
// index, or nil if data has no valid index.
func superframeSizes(data []byte) []int {
	if len(data) == 0 {
		return nil
	}
	marker := data[len(data)-1]
	if marker&0xe0 != 0xc0 {
		return nil
	}

	frames := int(marker&0x7) + 1
	mag := int((marker>>3)&0x3) + 1
	indexSize := 2 + mag*frames
	if len(data) < indexSize || data[len(data)-indexSize] != marker {
		return nil
	}

	sizes := make([]int, frames)
	total := 0
	pos := len(data) - indexSize + 1
	for i := range sizes {
		size := 0
		for b := 0; b < mag; b++ {
			size |= int(data[pos]) << (8 * b)
			pos++
		}
		sizes[i] = size
		total += size
	}
	if total > len(data)-indexSize {
		return nil
	}
	return sizes
}
