// Package sanitize normalizes zone and device names. Provider APIs
// return typographic punctuation (curly quotes, en dashes) that breaks
// exact-match lookups against names configured in plain ASCII.
package sanitize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var replacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
	"—", "-", // em dash
)

// Name folds typographic punctuation to its ASCII equivalent and applies
// Unicode NFKC normalization, so differently-typeset variants of the
// same logical name compare equal.
func Name(name string) string {
	return norm.NFKC.String(replacer.Replace(name))
}
