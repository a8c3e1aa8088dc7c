// Package tokenizer implements the normalization and token-extraction
// pipeline that turns raw address field text into distinctive and weak
// token streams.
//
// Description:
//
//	Tokenize is deterministic and pure: it never touches disk, the clock,
//	or any shared state, so it cannot fail and needs no error return. The
//	pipeline is: NFD decomposition, combining-mark removal, lowercasing,
//	non-alphanumeric-to-space folding, whitespace collapse, then a set of
//	shape-driven rules that classify base tokens as "distinctive" (high
//	selectivity — postal codes, house numbers, state codes, address-type
//	bigrams) or "weak" (everything else, plus 3-character n-grams of every
//	base token of length >= 3).
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rprado/lfas/services/lfas/field"
)

// ngramSize is the character n-gram length used for weak tokens. Fixed
// per spec.md §9 Open Question 2 until evidence demands configurability.
const ngramSize = 3

// addressTypeWords is the closed set of address-type words that, when
// adjacent to a distinctive token, form a distinctive bigram.
var addressTypeWords = map[string]bool{
	"rua":      true,
	"avenida":  true,
	"travessa": true,
	"rodovia":  true,
	"br":       true,
	"alameda":  true,
	"estrada":  true,
	"praca":    true,
	"viela":    true,
	"servidao": true,
	"ladeira":  true,
}

// brazilianStates is the closed set of valid two-letter Brazilian state
// codes recognized as distinctive tokens.
var brazilianStates = map[string]bool{
	"ac": true, "al": true, "ap": true, "am": true, "ba": true,
	"ce": true, "df": true, "es": true, "go": true, "ma": true,
	"mt": true, "ms": true, "mg": true, "pa": true, "pb": true,
	"pr": true, "pe": true, "pi": true, "rj": true, "rn": true,
	"rs": true, "ro": true, "rr": true, "sc": true, "sp": true,
	"se": true, "to": true,
}

var (
	postalCodeInline = regexp.MustCompile(`\b(\d{5})-(\d{3})\b`)
	postalCodeBare   = regexp.MustCompile(`^\d{8}$`)
	houseNumber      = regexp.MustCompile(`^\d{1,6}$`)
	nonAlphanumeric  = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// stripMarks removes Unicode combining marks left behind by NFD
// decomposition, so "á" (a + combining acute) normalizes to plain "a".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Tokens holds the distinctive and all-tokens streams produced by
// Tokenize, plus per-token occurrence counts for the all-tokens stream
// (used to populate posting-list term frequencies).
type Tokens struct {
	// Distinctive is the set of high-selectivity tokens used to form
	// Round-1 candidate sets. Distinctive is always a subset of All.
	Distinctive map[string]bool

	// All is the full token set (distinctive ∪ weak) used for Round-2
	// scoring.
	All map[string]bool

	// TF holds, for every token in All, its occurrence count within the
	// tokenized text. Posting-list writes use these counts directly.
	TF map[string]int
}

// Normalize applies the tokenizer's normalization pipeline to raw text:
// NFD decomposition, combining-mark removal, lowercasing, hyphenated
// postal-code collapsing, non-alphanumeric folding to a single space,
// whitespace collapse, and trimming.
//
// Hyphenated postal codes ("66095-000") are collapsed to their bare
// digit run ("66095000") before non-alphanumeric folding runs, so both
// the hyphenated and bare input forms reach base-token splitting as the
// same single token; normalizePostalCode then re-expands that token to
// its canonical hyphenated form. Folding on its own would otherwise
// split the hyphenated form on its hyphen, leaving classify to see two
// independent 5- and 3-digit runs instead of one postal code.
func Normalize(text string) string {
	decomposed, _, err := transform.String(stripMarks, text)
	if err != nil {
		// transform.String only errors on encoding faults; Chain with NFD
		// over arbitrary UTF-8 input does not produce them in practice,
		// but fall back to the original text rather than fail a pure
		// function.
		decomposed = text
	}
	lower := strings.ToLower(decomposed)
	lower = postalCodeInline.ReplaceAllString(lower, "$1$2")
	folded := nonAlphanumeric.ReplaceAllString(lower, " ")
	collapsed := whitespaceRun.ReplaceAllString(folded, " ")
	return strings.TrimSpace(collapsed)
}

// Tokenize normalizes text for the given field and splits it into
// distinctive and weak token streams, per the rules in SPEC_FULL.md §4.1.
//
// Tokenize is pure and deterministic: the same (fieldTag, text) pair
// always yields byte-identical results, and it never returns an error.
func Tokenize(fieldTag field.Tag, text string) Tokens {
	_ = fieldTag // field tag does not currently affect tokenization rules

	normalized := Normalize(text)
	out := Tokens{
		Distinctive: make(map[string]bool),
		All:         make(map[string]bool),
		TF:          make(map[string]int),
	}
	if normalized == "" {
		return out
	}

	rawBase := strings.Split(normalized, " ")
	base := make([]string, len(rawBase))
	distinctiveBase := make([]bool, len(rawBase))

	// Postal codes normalize to their hyphenated form before indexing;
	// every other token passes through unchanged. Distinctiveness is
	// judged on the raw shape, then recorded against the canonical token.
	for i, raw := range rawBase {
		distinctiveBase[i] = classify(raw)
		base[i] = normalizePostalCode(raw)
	}

	for i, tok := range base {
		if tok == "" {
			continue
		}
		out.All[tok] = true
		out.TF[tok]++
		if distinctiveBase[i] {
			out.Distinctive[tok] = true
		}
	}

	// Adjacent bigrams: one side an address-type word, the other a
	// distinctive token as defined above (house number, postal code, or
	// state abbreviation — NOT another address-type word, to avoid
	// emitting e.g. "rua avenida").
	for i := 0; i < len(base)-1; i++ {
		left, right := base[i], base[i+1]
		if left == "" || right == "" {
			continue
		}
		var bigram string
		switch {
		case addressTypeWords[left] && distinctiveBase[i+1] && !addressTypeWords[right]:
			bigram = left + " " + right
		case addressTypeWords[right] && distinctiveBase[i] && !addressTypeWords[left]:
			bigram = left + " " + right
		default:
			continue
		}
		out.Distinctive[bigram] = true
		out.All[bigram] = true
		out.TF[bigram]++
	}

	// Weak tokens: 3-character n-grams of every base token of length >= 3.
	for _, tok := range base {
		if len(tok) < ngramSize {
			continue
		}
		runesOf := []rune(tok)
		if len(runesOf) == ngramSize {
			// The token is its own only n-gram; it was counted above.
			continue
		}
		for i := 0; i+ngramSize <= len(runesOf); i++ {
			gram := string(runesOf[i : i+ngramSize])
			out.All[gram] = true
			out.TF[gram]++
		}
	}

	return out
}

// classify reports whether base token tok matches a distinctive shape:
// postal code, house number, or state abbreviation. By the time a base
// token reaches classify, Normalize has already collapsed any hyphenated
// postal code into its bare 8-digit form, so only postalCodeBare needs
// checking here; normalizePostalCode re-expands the match to canonical
// hyphenated form for the caller to emit.
func classify(tok string) bool {
	switch {
	case postalCodeBare.MatchString(tok):
		return true
	case houseNumber.MatchString(tok):
		return true
	case brazilianStates[tok]:
		return true
	default:
		return false
	}
}

// normalizePostalCode rewrites an 8-digit bare postal code into its
// hyphenated 5-3 form. Hyphenated input is returned unchanged.
func normalizePostalCode(tok string) string {
	if postalCodeBare.MatchString(tok) {
		return tok[:5] + "-" + tok[5:]
	}
	return tok
}
