package therapy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold produces the canonical index/query form of a term: lowercased with
// combining accents stripped. Every index write and every query lookup must
// go through the same fold, or exact matching silently breaks.
func Fold(s string) string {
	result, _, _ := transform.String(stripAccents, strings.ToLower(s))
	return result
}
