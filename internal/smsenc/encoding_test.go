package smsenc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		encoding Encoding
		segments int
	}{
		{"simple ascii", "Hello", GSM7, 1},
		{"empty", "", GSM7, 1},
		{"exactly 160", strings.Repeat("a", 160), GSM7, 1},
		{"161 chars splits on 153", strings.Repeat("a", 161), GSM7, 2},
		{"200 ascii chars", strings.Repeat("x", 200), GSM7, 2},
		{"four parts", strings.Repeat("a", 460), GSM7, 4},
		{"gsm extension char counts double", strings.Repeat("a", 158) + "{", GSM7, 1},
		{"extension char tips over the limit", strings.Repeat("a", 159) + "{", GSM7, 2},
		{"euro sign stays narrow", "price: 10€", GSM7, 1},
		{"accented gsm chars stay narrow", "àéùìò ÄÖÑÜ", GSM7, 1},
		{"emoji forces wide", "Hello 👋", UCS2, 1},
		{"arabic forces wide", "مرحبا", UCS2, 1},
		{"exactly 70 wide", strings.Repeat("م", 70), UCS2, 1},
		{"71 wide splits on 67", strings.Repeat("م", 71), UCS2, 2},
		// a surrogate-pair emoji occupies two UTF-16 units
		{"surrogate pairs count double", strings.Repeat("😀", 35), UCS2, 1},
		{"36 emoji exceed one segment", strings.Repeat("😀", 36), UCS2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, segs := Encode(tt.text)
			assert.Equal(t, tt.encoding, enc)
			assert.Equal(t, tt.segments, segs)
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		enc, segs := Encode("Karibu! Your code is 482913")
		assert.Equal(t, GSM7, enc)
		assert.Equal(t, 1, segs)
	}
}
