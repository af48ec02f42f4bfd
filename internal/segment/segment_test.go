package segment

import (
	"strings"
	"testing"

	"smsdispatch/internal/models"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		encoding models.Encoding
		segments int
	}{
		{"empty", "", models.EncodingGSM7, 0},
		{"short ascii", "Hello", models.EncodingGSM7, 1},
		{"159 ascii", strings.Repeat("a", 159), models.EncodingGSM7, 1},
		{"160 ascii", strings.Repeat("a", 160), models.EncodingGSM7, 1},
		{"161 ascii", strings.Repeat("a", 161), models.EncodingGSM7, 2},
		{"306 ascii", strings.Repeat("a", 306), models.EncodingGSM7, 2},
		{"307 ascii", strings.Repeat("a", 307), models.EncodingGSM7, 3},
		{"extension counts double", strings.Repeat("a", 158) + "€", models.EncodingGSM7, 1},
		{"extension crosses limit", strings.Repeat("a", 159) + "{", models.EncodingGSM7, 2},
		{"acute u forces ucs2", "Olà, Ñandú è Ç", models.EncodingUCS2, 1},
		{"acute a forces ucs2", "Olá", models.EncodingUCS2, 1},
		{"one emoji", "Hi 😀", models.EncodingUCS2, 1},
		{"70 ucs2", strings.Repeat("ж", 70), models.EncodingUCS2, 1},
		{"71 ucs2", strings.Repeat("ж", 71), models.EncodingUCS2, 2},
		{"134 ucs2", strings.Repeat("ж", 134), models.EncodingUCS2, 2},
		{"135 ucs2", strings.Repeat("ж", 135), models.EncodingUCS2, 3},
		{"emoji counts two units", strings.Repeat("ж", 68) + "😀", models.EncodingUCS2, 1},
		{"emoji crosses limit", strings.Repeat("ж", 69) + "😀", models.EncodingUCS2, 2},
		{"emoji with 69 ascii", "😀" + strings.Repeat("a", 69), models.EncodingUCS2, 2},
		{"70 emoji", strings.Repeat("😀", 70), models.EncodingUCS2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.body)
			if got.Encoding != tt.encoding || got.Segments != tt.segments {
				t.Errorf("Calculate() = {%s, %d}, want {%s, %d}", got.Encoding, got.Segments, tt.encoding, tt.segments)
			}
		})
	}
}

func TestCalculate_GSMAccentsStayGSM(t *testing.T) {
	got := Calculate("àèéùìòÇØøÅåÄÖÑÜäöñü")
	if got.Encoding != models.EncodingGSM7 {
		t.Errorf("Encoding = %s, want GSM7", got.Encoding)
	}
}

func TestIsGSM(t *testing.T) {
	if !IsGSM("Promo: 50% off [today] ~ {ok}") {
		t.Error("expected GSM body")
	}
	if IsGSM("Preço") {
		t.Error("ç is not in the GSM alphabet")
	}
}
