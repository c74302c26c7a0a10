package scorer

import (
	"strings"
	"unicode"
)

// Confusable fold table: visually confusable characters mapped to the ASCII
// letters they imitate. This is the subset of the Unicode confusables data
// that actually appears in registrable domain labels; characters without an
// entry fold to themselves.
var confusableFold = map[rune]rune{
	// Cyrillic
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', 'у': 'y',
	'і': 'i', 'ѕ': 's', 'ј': 'j', 'һ': 'h', 'ԁ': 'd', 'ԛ': 'q', 'ԝ': 'w',
	'в': 'b', 'м': 'm', 'н': 'h', 'т': 't', 'к': 'k', 'г': 'r', 'ь': 'b',
	// Greek
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x', 'ω': 'w', 'ϲ': 'c',
	// Armenian
	'ո': 'n', 'օ': 'o', 'ս': 'u', 'ց': 'g',
}

// scriptOf buckets a letter into a coarse script group. Han, Hiragana and
// Katakana count as one group so Japanese domains are internally consistent.
func scriptOf(r rune) string {
	switch {
	case unicode.Is(unicode.Latin, r):
		return "latin"
	case unicode.Is(unicode.Cyrillic, r):
		return "cyrillic"
	case unicode.Is(unicode.Greek, r):
		return "greek"
	case unicode.Is(unicode.Armenian, r):
		return "armenian"
	case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
		return "cjk"
	case unicode.Is(unicode.Hangul, r):
		return "hangul"
	case unicode.Is(unicode.Arabic, r):
		return "arabic"
	case unicode.Is(unicode.Hebrew, r):
		return "hebrew"
	case unicode.IsLetter(r):
		return "other"
	default:
		return "" // digits, hyphens, dots carry no script
	}
}

// mixesScripts reports whether the name portion of a domain mixes letters
// from more than one script. A domain that is internally consistent in a
// single script (fully Cyrillic, fully CJK, accented Latin) does not mix
// and is never flagged; this is the primary false-positive guard.
func mixesScripts(name string) bool {
	seen := ""
	for _, r := range name {
		s := scriptOf(r)
		if s == "" {
			continue
		}
		if seen == "" {
			seen = s
			continue
		}
		if s != seen {
			return true
		}
	}
	return false
}

// foldConfusables maps confusable characters to their ASCII skeleton.
func foldConfusables(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := confusableFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// confusablePopularDomain reports whether a mixed-script domain folds to a
// visually confusable rendering of a popular domain, returning the imitated
// domain. Both the registrable domain and its bare name are compared.
func confusablePopularDomain(name, tld string) (string, bool) {
	skeleton := foldConfusables(name)
	full := skeleton
	if tld != "" {
		full = skeleton + "." + tld
	}
	for i, d := range popularDomains {
		if full == d || skeleton == popularNames[i] {
			return d, true
		}
	}
	return "", false
}
