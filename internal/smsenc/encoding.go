// Package smsenc classifies message text into a wire encoding and computes
// the segment count used for billing. This is the only place encoding is
// decided; provider adapters receive the result and must not re-guess.
package smsenc

import "unicode/utf16"

// Encoding values match the upstream wire field (0 = GSM 03.38, 1 = UCS-2).
type Encoding int

const (
	GSM7 Encoding = 0
	UCS2 Encoding = 1
)

func (e Encoding) String() string {
	if e == UCS2 {
		return "ucs2"
	}
	return "gsm7"
}

const (
	gsm7SingleLimit = 160
	gsm7MultiLimit  = 153
	ucs2SingleLimit = 70
	ucs2MultiLimit  = 67
)

// gsm7Basic is the GSM 03.38 default alphabet.
const gsm7Basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

// gsm7Extended chars are sent as an escape pair and occupy two septets.
const gsm7Extended = "^{}\\[~]|€"

var (
	basicSet    = make(map[rune]struct{}, len(gsm7Basic))
	extendedSet = make(map[rune]struct{}, len(gsm7Extended))
)

func init() {
	for _, r := range gsm7Basic {
		basicSet[r] = struct{}{}
	}
	for _, r := range gsm7Extended {
		extendedSet[r] = struct{}{}
	}
}

// Encode classifies text and returns the encoding plus the number of segments
// it splits into. A message fitting the single-segment limit is one segment;
// longer messages use the shorter multi-segment limit per part. Empty text
// still counts as one segment.
func Encode(text string) (Encoding, int) {
	units := 0
	wide := false
	for _, r := range text {
		if _, ok := basicSet[r]; ok {
			units++
			continue
		}
		if _, ok := extendedSet[r]; ok {
			units += 2
			continue
		}
		wide = true
		break
	}

	if wide {
		units = len(utf16.Encode([]rune(text)))
		return UCS2, segments(units, ucs2SingleLimit, ucs2MultiLimit)
	}
	return GSM7, segments(units, gsm7SingleLimit, gsm7MultiLimit)
}

func segments(units, single, multi int) int {
	if units <= single {
		return 1
	}
	return (units + multi - 1) / multi
}
