package pipeline

import "time"

// Plan partitions [0, total) into contiguous, non-overlapping chunk windows
// of at most maxChunk each. All windows have equal width except possibly the
// last. A file no longer than maxChunk yields a single window, so short
// inputs carry no chunking overhead.
//
// The contiguity of the returned windows is what lets the merger offset
// chunk-local timestamps by pure addition, with no drift across chunks.
func Plan(total, maxChunk time.Duration) ([]ChunkWindow, error) {
	if total <= 0 {
		return nil, &InvalidDurationError{Duration: total}
	}
	if maxChunk <= 0 {
		return nil, &InvalidDurationError{Duration: maxChunk}
	}

	if total <= maxChunk {
		return []ChunkWindow{{Index: 0, Start: 0, End: total}}, nil
	}

	var windows []ChunkWindow
	for start := time.Duration(0); start < total; start += maxChunk {
		end := start + maxChunk
		if end > total {
			end = total
		}
		windows = append(windows, ChunkWindow{
			Index: len(windows),
			Start: start,
			End:   end,
		})
	}
	return windows, nil
}
