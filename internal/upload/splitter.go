package upload

import "fmt"

// ChunkRange is one contiguous byte range of a file
type ChunkRange struct {
	Index int
	Start int64
	End   int64
}

// Split computes the ordered chunk list for a file of the given size.
// Every chunk except possibly the last has length exactly chunkSize, and
// the last chunk's range is clamped to the file size. A zero-byte file
// yields a single empty chunk so the reassembly step stays well-defined.
func Split(fileSize, chunkSize int64) ([]ChunkRange, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}
	if fileSize < 0 {
		return nil, fmt.Errorf("invalid file size: %d", fileSize)
	}

	count := (fileSize + chunkSize - 1) / chunkSize
	if count == 0 {
		count = 1
	}

	ranges := make([]ChunkRange, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > fileSize {
			end = fileSize
		}
		ranges = append(ranges, ChunkRange{
			Index: int(i),
			Start: start,
			End:   end,
		})
	}

	return ranges, nil
}
