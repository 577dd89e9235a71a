package normalize

import (
	"strconv"
	"strings"
)

// punctuation maps typographic variants to their plain ASCII-ish forms.
var punctuation = strings.NewReplacer(
	" ", " ", // non-breaking space
	"–", "-", // en dash
	"—", "-", // em dash
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"«", `"`,
	"»", `"`,
	"…", "...",
)

// Clean replaces typographic punctuation variants, collapses runs of
// whitespace and trims the result. Display names are stored in this form.
func Clean(s string) string {
	s = punctuation.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Key returns the normalized lowercase form used as a dedup key for series
// and team names.
func Key(s string) string {
	return strings.ToLower(Clean(s))
}

// Decimal parses a locale-tolerant decimal: both comma and dot are accepted
// as the separator. An unparsable value yields 0; the source does not
// distinguish a zero score from a formatting miss.
func Decimal(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Integer parses an integer cell; unparsable values yield 0.
func Integer(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
