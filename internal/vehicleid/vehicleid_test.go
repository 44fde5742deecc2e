package vehicleid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		n    Normalizer
		in   string
		want string
	}{
		{"service prefix", Services(), "SAO-001", "001"},
		{"usage prefix", Usages(), "SAO001", "001"},
		{"no prefix passes through", Services(), "001", "001"},
		{"only first occurrence", Usages(), "SAOSAO7", "SAO7"},
		{"case sensitive", Usages(), "sao001", "sao001"},
		{"service prefix absent from usage style", Services(), "SAO001", "SAO001"},
		{"empty prefix", Normalizer{}, "SAO-9", "SAO-9"},
		{"empty input", Usages(), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.Normalize(tt.in))
		})
	}
}

func TestBothSidesAgree(t *testing.T) {
	assert.Equal(t, Services().Normalize("SAO-042"), Usages().Normalize("SAO042"))
}
