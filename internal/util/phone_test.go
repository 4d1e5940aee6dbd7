package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDest(t *testing.T) {
	tests := []struct {
		in   string
		cc   string
		want string
	}{
		{"+255712345678", "255", "255712345678"},
		{"00255712345678", "255", "255712345678"},
		{"712345678", "255", "255712345678"},
		{"0712345678", "255", "255712345678"},
		{"255712345678", "255", "255712345678"},
		{" +255 712-345-678 ", "255", "255712345678"},
		{"0712345678", "254", "254712345678"},
		// no country code configured: digits only, no padding
		{"0712345678", "", "0712345678"},
		// full international numbers from elsewhere are left alone
		{"+14155550100", "255", "14155550100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDest(tt.in, tt.cc), "in=%q cc=%q", tt.in, tt.cc)
	}
}
