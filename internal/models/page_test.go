package models

import "testing"

func TestPageOptionsNormalize(t *testing.T) {
	tests := []struct {
		name       string
		in         PageOptions
		wantPage   int
		wantSize   int
		wantOffset int
	}{
		{"zero value", PageOptions{}, 1, 20, 0},
		{"negative page", PageOptions{Page: -3, Size: 10}, 1, 10, 0},
		{"oversized", PageOptions{Page: 2, Size: 500}, 2, 100, 100},
		{"regular", PageOptions{Page: 3, Size: 20}, 3, 20, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset := tt.in.Offset()
			if tt.in.Page != tt.wantPage || tt.in.Size != tt.wantSize {
				t.Errorf("normalized to page=%d size=%d, want page=%d size=%d",
					tt.in.Page, tt.in.Size, tt.wantPage, tt.wantSize)
			}
			if offset != tt.wantOffset {
				t.Errorf("Offset() = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

func TestNewCardPage(t *testing.T) {
	page := NewCardPage(nil, PageOptions{Page: 1, Size: 20}, 45)
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if page.Items == nil {
		t.Error("Items is nil, want empty slice")
	}

	empty := NewCardPage(nil, PageOptions{}, 0)
	if empty.TotalPages != 1 {
		t.Errorf("TotalPages = %d for empty result, want 1", empty.TotalPages)
	}
}
