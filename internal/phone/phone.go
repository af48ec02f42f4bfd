// Package phone validates recipient numbers and canonicalizes them to E.164.
package phone

import (
	"sort"
	"strings"
)

// CountryProfile describes the numbering plan accepted for one country
type CountryProfile struct {
	Code           string
	DialCode       string
	LocalLengths   []int
	MobilePrefixes []string
	TrunkPrefix    string
}

// Result is the outcome of normalizing one input
type Result struct {
	OK      bool   `json:"ok"`
	E164    string `json:"e164,omitempty"`
	Country string `json:"country,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Reasons that are not tied to a country
const (
	ReasonEmpty     = "empty"
	ReasonNoCountry = "no country matched"
)

// DefaultProfiles is the built-in lusophone numbering table
var DefaultProfiles = []CountryProfile{
	{Code: "AO", DialCode: "244", LocalLengths: []int{9}, MobilePrefixes: []string{"9"}, TrunkPrefix: "0"},
	{Code: "PT", DialCode: "351", LocalLengths: []int{9}, MobilePrefixes: []string{"9"}},
	{Code: "MZ", DialCode: "258", LocalLengths: []int{9}, MobilePrefixes: []string{"8"}},
	{Code: "CV", DialCode: "238", LocalLengths: []int{7}, MobilePrefixes: []string{"5", "9"}},
	{Code: "ST", DialCode: "239", LocalLengths: []int{7}, MobilePrefixes: []string{"9"}},
}

// Normalizer matches numbers against a fixed set of country profiles.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	profiles []CountryProfile
	byCode   map[string]CountryProfile
}

// NewNormalizer creates a normalizer; nil profiles selects DefaultProfiles
func NewNormalizer(profiles []CountryProfile) *Normalizer {
	if profiles == nil {
		profiles = DefaultProfiles
	}

	sorted := make([]CountryProfile, len(profiles))
	copy(sorted, profiles)
	// Longest dial code first so prefix matching is unambiguous
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].DialCode) > len(sorted[j].DialCode)
	})

	byCode := make(map[string]CountryProfile, len(sorted))
	for _, p := range sorted {
		byCode[strings.ToUpper(p.Code)] = p
	}

	return &Normalizer{profiles: sorted, byCode: byCode}
}

// Profile returns the profile registered for a country code
func (n *Normalizer) Profile(country string) (CountryProfile, bool) {
	p, ok := n.byCode[strings.ToUpper(country)]
	return p, ok
}

// Normalize canonicalizes raw into E.164. hintCountry is used only when
// the number does not carry a recognizable international prefix.
func (n *Normalizer) Normalize(raw, hintCountry string) Result {
	digits, international := clean(raw)
	if digits == "" {
		return Result{Reason: ReasonEmpty}
	}

	if international {
		p, ok := n.matchDialCode(digits)
		if !ok {
			return Result{Reason: ReasonNoCountry}
		}
		return validate(p, digits[len(p.DialCode):])
	}

	// Numeric prefix first, then the caller's default country
	var prefixed *Result
	for _, p := range n.profiles {
		if !strings.HasPrefix(digits, p.DialCode) {
			continue
		}
		national := digits[len(p.DialCode):]
		if !hasLength(p, len(national)) {
			continue
		}
		res := validate(p, national)
		if res.OK {
			return res
		}
		if prefixed == nil {
			prefixed = &res
		}
	}

	if p, ok := n.Profile(hintCountry); ok {
		national := digits
		if p.TrunkPrefix != "" && len(national) > 1 {
			national = strings.TrimPrefix(national, p.TrunkPrefix)
		}
		res := validate(p, national)
		if res.OK || prefixed == nil {
			return res
		}
	}

	if prefixed != nil {
		return *prefixed
	}
	return Result{Reason: ReasonNoCountry}
}

func (n *Normalizer) matchDialCode(digits string) (CountryProfile, bool) {
	for _, p := range n.profiles {
		if strings.HasPrefix(digits, p.DialCode) {
			return p, true
		}
	}
	return CountryProfile{}, false
}

func validate(p CountryProfile, national string) Result {
	code := strings.ToLower(p.Code)
	if !hasLength(p, len(national)) {
		return Result{Country: p.Code, Reason: "invalid_length_" + code}
	}
	if !hasMobilePrefix(p, national) {
		return Result{Country: p.Code, Reason: "invalid_mobile_prefix_" + code}
	}
	return Result{OK: true, E164: "+" + p.DialCode + national, Country: p.Code}
}

func hasLength(p CountryProfile, n int) bool {
	for _, l := range p.LocalLengths {
		if l == n {
			return true
		}
	}
	return false
}

func hasMobilePrefix(p CountryProfile, national string) bool {
	if len(p.MobilePrefixes) == 0 {
		return true
	}
	for _, prefix := range p.MobilePrefixes {
		if strings.HasPrefix(national, prefix) {
			return true
		}
	}
	return false
}

// clean keeps digits only and reports whether the input carried an
// international marker ("+" or a leading "00").
func clean(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	plus := strings.HasPrefix(raw, "+")

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if !plus && strings.HasPrefix(digits, "00") {
		return digits[2:], true
	}
	return digits, plus
}
