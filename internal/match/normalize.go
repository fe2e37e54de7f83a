// Package match scores source candidates against a song query and decides
// whether one of them is an acceptable match.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation maps typographic variants onto one canonical form.
var punctuation = strings.NewReplacer(
	"‘", "'", "’", "'", "‛", "'", "ʼ", "'", "`", "'", "´", "'",
	"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
	"…", "...",
	"&", " and ", "+", " and ",
)

// ensembleSuffixes are trailing words that name a group's format rather
// than its identity. Multi-word entries come first.
var ensembleSuffixes = []string{
	"big band", "all stars", "all-stars", "allstars",
	"trio", "quartet", "quintet", "sextet", "septet", "octet", "nonet",
	"orchestra", "band", "ensemble", "group", "combo",
}

var versionWords = regexp.MustCompile(`\b(live|remaster(ed)?|alternate|alt|take \d+|demo|mono|stereo|radio edit|single version|album version|edit|mix|remix|bonus track|instrumental|acoustic|version)\b`)

var bracketed = regexp.MustCompile(`\s*[\(\[]([^\)\]]*)[\)\]]`)

// Canonicalize folds diacritics and typographic punctuation without
// changing case or dropping characters.
func Canonicalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ReplaceAll(folded, "ß", "ss")
	folded = strings.ReplaceAll(folded, "æ", "ae")
	folded = strings.ReplaceAll(folded, "œ", "oe")
	return punctuation.Replace(folded)
}

// Normalize lowercases s, folds diacritics, drops apostrophes and turns the
// remaining punctuation into word breaks.
func Normalize(s string) string {
	s = strings.ToLower(Canonicalize(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeArtist normalizes an artist or ensemble name and removes a
// leading "the" and trailing ensemble-format words, so "The Dave Brubeck
// Quartet" and "Dave Brubeck" compare equal.
func NormalizeArtist(s string) string {
	n := Normalize(s)
	n = strings.TrimPrefix(n, "the ")
	for {
		trimmed := false
		for _, suf := range ensembleSuffixes {
			suf = Normalize(suf)
			if n != suf && strings.HasSuffix(n, " "+suf) {
				n = strings.TrimSuffix(n, " "+suf)
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}
	if n == "" {
		return Normalize(s)
	}
	return n
}

// StripVersion removes live, remaster and alternate-version qualifiers from
// a title, in brackets or after a dash, and returns the normalized result.
func StripVersion(title string) string {
	s := Canonicalize(title)
	s = bracketed.ReplaceAllStringFunc(s, func(m string) string {
		if versionWords.MatchString(strings.ToLower(m)) {
			return ""
		}
		return m
	})
	if i := strings.Index(s, " - "); i > 0 && versionWords.MatchString(strings.ToLower(s[i:])) {
		s = s[:i]
	}
	return Normalize(s)
}
