package download

import (
	"testing"

	"github.com/handiism/attachment-downloader/internal/model"
)

func TestBatchProgress(t *testing.T) {
	lib := model.CustomLibrary(1)
	a := model.NewDownload("AAAA", lib)
	b := model.NewDownload("BBBB", lib)

	batch := NewBatchProgress()
	if _, ok := batch.Current(); ok {
		t.Fatal("empty batch should have no progress")
	}

	batch.Update(a, 20)
	batch.Update(b, 60)
	if p, ok := batch.Current(); !ok || p != 40 {
		t.Errorf("Current() = %d, %v, want 40, true", p, ok)
	}

	batch.Finish(a)
	if p, _ := batch.Current(); p != 60 {
		t.Errorf("Current() after finish = %d, want 60", p)
	}
	if batch.Len() != 1 {
		t.Errorf("Len() = %d, want 1", batch.Len())
	}

	batch.Reset()
	if batch.Len() != 0 {
		t.Errorf("Len() after reset = %d, want 0", batch.Len())
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{250, 100},
	}

	for _, tt := range tests {
		if got := clampPercent(tt.in); got != tt.want {
			t.Errorf("clampPercent(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
