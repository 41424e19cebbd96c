package store_test

import (
	"testing"

	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name                             string
		page, limit                      int
		wantPage, wantLimit, wantOffset int
	}{
		{"defaults", 0, 0, 1, 20, 0},
		{"negative", -3, -1, 1, 20, 0},
		{"second page", 2, 20, 2, 20, 20},
		{"limit clamped", 1, 500, 1, 100, 0},
		{"custom", 4, 15, 4, 15, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, limit, offset := store.NormalizePage(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
