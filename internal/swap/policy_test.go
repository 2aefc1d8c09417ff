package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommendMB(t *testing.T) {
	tests := []struct {
		name       string
		totalRAMMB uint64
		want       uint64
	}{
		{"zero ram", 0, 2048},
		{"tiny vps", 512, 2048},
		{"1gb boundary", 1024, 2048},
		{"just above 1gb", 1025, 2048},
		{"2gb boundary", 2048, 2048},
		{"just above 2gb", 2049, 1024},
		{"4gb boundary", 4096, 1024},
		{"just above 4gb", 4097, 0},
		{"big machine", 32768, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendMB(tt.totalRAMMB))
		})
	}
}

func TestRecommendMBDeterministic(t *testing.T) {
	for _, ram := range []uint64{0, 1024, 2048, 4096, 65536} {
		assert.Equal(t, RecommendMB(ram), RecommendMB(ram))
	}
}
