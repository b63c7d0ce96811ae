package download

import "github.com/handiism/attachment-downloader/internal/model"

// BatchProgress aggregates per-download percentages into one overall percentage
// for the downloads currently in flight.
//
// BatchProgress is not safe for concurrent use; the Coordinator guards it with its own lock.
type BatchProgress struct {
	progress map[model.Download]int
}

// NewBatchProgress creates an empty tracker.
func NewBatchProgress() *BatchProgress {
	return &BatchProgress{progress: make(map[model.Download]int)}
}

// Update records the progress of a download, clamped to 0-100.
func (b *BatchProgress) Update(d model.Download, percent int) {
	b.progress[d] = clampPercent(percent)
}

// Finish removes a download from the batch.
func (b *BatchProgress) Finish(d model.Download) {
	delete(b.progress, d)
}

// Current returns the mean progress over the active downloads.
// ok is false when the batch is empty.
func (b *BatchProgress) Current() (percent int, ok bool) {
	if len(b.progress) == 0 {
		return 0, false
	}
	sum := 0
	for _, p := range b.progress {
		sum += p
	}
	return sum / len(b.progress), true
}

// Len returns the number of downloads tracked.
func (b *BatchProgress) Len() int {
	return len(b.progress)
}

// Reset empties the tracker.
func (b *BatchProgress) Reset() {
	clear(b.progress)
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
