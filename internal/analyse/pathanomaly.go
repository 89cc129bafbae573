package analyse

import (
	"fmt"
	"strings"
	"unicode"
)

// pathAnomaly is one Unicode smuggling indicator found in a recovered
// shimcache path or SRUM application name. Chainsaw only ever scans
// strings that scanUTF16Path or scanASCIIIdentifier already decoded, so
// unlike a scanner sitting in front of arbitrary CLI input, there is no
// invalid-UTF-8 or raw-control-byte case to classify here: the UTF-16
// decode already rejected code units below 0x20 and any lone surrogate.
// What's left to flag is exactly what's dangerous about a cached
// execution path specifically - a RIGHT-TO-LEFT OVERRIDE can make
// "update.exe.scr" cached as the executed file display as
// "update.scr.exe", and a Cyrillic "а" swapped into "explorer.exe" is
// invisible in a narrow terminal column.
type pathAnomaly struct {
	category string
	detail   string
}

// scanPathAnomalies walks s rune by rune and reports every bidi
// control, zero-width character, Unicode tag character, and Latin-
// confusable homoglyph it finds.
func scanPathAnomalies(s string) []pathAnomaly {
	var found []pathAnomaly
	for _, r := range s {
		switch {
		case isZeroWidthRune(r):
			found = append(found, pathAnomaly{
				category: "zero-width",
				detail:   fmt.Sprintf("U+%04X hides a character from a directory listing", r),
			})
		case isBidiControlRune(r):
			found = append(found, pathAnomaly{
				category: "bidi-override",
				detail:   fmt.Sprintf("U+%04X can reverse the displayed order of the path (RTLO extension spoofing)", r),
			})
		case isUnicodeTagRune(r):
			found = append(found, pathAnomaly{
				category: "tag-char",
				detail:   fmt.Sprintf("U+%04X carries hidden tag-block metadata inside the path", r),
			})
		default:
			if latin, ok := homoglyphLatin(r); ok {
				found = append(found, pathAnomaly{
					category: "homoglyph",
					detail:   fmt.Sprintf("%q (U+%04X) mimics Latin %q in an executable path", r, r, latin),
				})
			}
		}
	}
	return found
}

// describePathAnomalies renders a scan's categories as a short
// comma-joined list for a CSV or JSON cell.
func describePathAnomalies(anomalies []pathAnomaly) string {
	cats := make([]string, len(anomalies))
	for i, a := range anomalies {
		cats[i] = a.category
	}
	return strings.Join(cats, ",")
}

func isZeroWidthRune(r rune) bool {
	switch r {
	case '\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\uFEFF', // ZERO WIDTH NO-BREAK SPACE (BOM)
		'\u2060', // WORD JOINER
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F': // RIGHT-TO-LEFT MARK
		return true
	}
	return false
}

func isBidiControlRune(r rune) bool {
	switch r {
	case '\u202A', '\u202B', '\u202C', '\u202D', '\u202E', // embeddings, pop, overrides
		'\u2066', '\u2067', '\u2068', '\u2069': // isolates
		return true
	}
	return false
}

func isUnicodeTagRune(r rune) bool {
	return r >= 0xE0001 && r <= 0xE007F
}

// homoglyphLatin reports the Latin letter a Cyrillic or Greek rune is
// visually confusable with, if any.
func homoglyphLatin(r rune) (rune, bool) {
	if unicode.Is(unicode.Cyrillic, r) {
		if latin, ok := cyrillicLookalikes[r]; ok {
			return latin, true
		}
	}
	if unicode.Is(unicode.Greek, r) {
		if latin, ok := greekLookalikes[r]; ok {
			return latin, true
		}
	}
	return 0, false
}

// cyrillicLookalikes maps Cyrillic letters onto the Latin letter they
// are commonly substituted for in a spoofed executable name.
var cyrillicLookalikes = map[rune]rune{
	'а': 'a', 'А': 'A',
	'В': 'B',
	'с': 'c', 'С': 'C',
	'е': 'e', 'Е': 'E',
	'Н': 'H',
	'і': 'i', 'І': 'I',
	'К': 'K',
	'М': 'M',
	'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P',
	'Т': 'T',
	'х': 'x', 'Х': 'X',
	'у': 'y', 'У': 'Y',
}

// greekLookalikes maps Greek letters onto the Latin letter they are
// commonly substituted for in a spoofed executable name.
var greekLookalikes = map[rune]rune{
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I',
	'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'ο': 'o',
	'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}
