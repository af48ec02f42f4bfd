// Package segment computes SMS encoding and billable segment counts.
package segment

import (
	"unicode/utf16"

	"smsdispatch/internal/models"
)

const (
	gsmSingleLimit  = 160
	gsmConcatLimit  = 153
	ucs2SingleLimit = 70
	ucs2ConcatLimit = 67
)

const gsmBasic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

const gsmExtension = "^{}\\[~]|€\f"

var (
	basicSet     = runeSet(gsmBasic)
	extensionSet = runeSet(gsmExtension)
)

func runeSet(s string) map[rune]struct{} {
	m := make(map[rune]struct{}, len(s))
	for _, r := range s {
		m[r] = struct{}{}
	}
	return m
}

// Info describes how a body will be transmitted
type Info struct {
	Encoding models.Encoding `json:"encoding"`
	Segments int             `json:"segments"`
	Length   int             `json:"length"`
}

// Calculate returns the encoding and number of segments for body
func Calculate(body string) Info {
	if body == "" {
		return Info{Encoding: models.EncodingGSM7}
	}

	if length, ok := gsmLength(body); ok {
		return Info{
			Encoding: models.EncodingGSM7,
			Segments: count(length, gsmSingleLimit, gsmConcatLimit),
			Length:   length,
		}
	}

	length := 0
	for _, r := range body {
		length += utf16.RuneLen(r)
	}
	return Info{
		Encoding: models.EncodingUCS2,
		Segments: count(length, ucs2SingleLimit, ucs2ConcatLimit),
		Length:   length,
	}
}

// IsGSM reports whether every character of body fits the GSM 7-bit alphabet
func IsGSM(body string) bool {
	_, ok := gsmLength(body)
	return ok
}

func gsmLength(body string) (int, bool) {
	length := 0
	for _, r := range body {
		if _, ok := basicSet[r]; ok {
			length++
			continue
		}
		if _, ok := extensionSet[r]; ok {
			length += 2
			continue
		}
		return 0, false
	}
	return length, true
}

func count(length, single, concat int) int {
	if length <= single {
		return 1
	}
	return (length + concat - 1) / concat
}
