package incident

import (
	"strings"
	"unicode"
)

// Spanish function words that carry no signal for matching two incident
// summaries about the same underlying problem.
var stopWords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "un": true, "una": true,
	"unos": true, "unas": true, "de": true, "del": true, "en": true, "al": true,
	"por": true, "para": true, "con": true, "sin": true, "que": true, "qué": true,
	"se": true, "su": true, "sus": true, "mi": true, "mis": true, "es": true,
	"está": true, "estaba": true, "hay": true, "muy": true, "más": true,
	"pero": true, "como": true, "cuando": true, "donde": true, "desde": true,
	"hasta": true, "sobre": true, "entre": true, "este": true, "esta": true,
	"ese": true, "esa": true, "tengo": true, "tiene": true, "hola": true,
	"buenas": true, "buenos": true, "días": true, "tardes": true, "gracias": true,
	"favor": true, "sido": true, "han": true, "les": true, "nos": true,
}

// Tokenize lowercases the text, splits on anything that is not a letter or
// digit and drops stop words and tokens of two characters or fewer.
func Tokenize(text string) map[string]bool {
	tokens := map[string]bool{}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len([]rune(f)) <= 2 || stopWords[f] {
			continue
		}
		tokens[f] = true
	}
	return tokens
}

// OverlapRatio measures how much the smaller token set is contained in the
// other one. Two empty or near-empty summaries never match.
func OverlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if large[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// similarityThreshold is the token overlap above which two summaries from the
// same phone are treated as the same incident.
const similarityThreshold = 0.7

// SameIncident reports whether a new detection duplicates an existing one.
// A shared explicit type is enough on its own; otherwise the summaries must
// overlap heavily.
func SameIncident(existingSummary string, existingType *string, newSummary string, newType string) bool {
	if newType != "" && existingType != nil && *existingType == newType {
		return true
	}
	return OverlapRatio(Tokenize(existingSummary), Tokenize(newSummary)) >= similarityThreshold
}
