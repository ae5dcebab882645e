package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeatLevel_When_RateVaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate float64
		want int
	}{
		{0, 0}, {49.9, 0}, {50, 1}, {75, 2}, {90, 3}, {95, 4}, {100, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HeatLevel(tt.rate), "rate %v", tt.rate)
	}
}
