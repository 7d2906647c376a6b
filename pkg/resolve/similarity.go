package resolve

import "strings"

// Similarity scores how alike two labels are, from 0 (nothing in common)
// to 1 (equal ignoring case).
//
// When one label contains the other the score is 0.5 + 0.5*short/long, so
// containment always scores above 0.5 ("IfcWall" in "IfcWallStandardCase"
// scores about 0.68). Otherwise it is the Sørensen–Dice coefficient over
// character bigrams.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}
	if strings.Contains(string(long), string(short)) {
		return 0.5 + 0.5*float64(len(short))/float64(len(long))
	}
	return dice(ra, rb)
}

// dice returns the Sørensen–Dice coefficient of the bigram multisets of
// a and b. Single-rune strings have no bigrams and score 0.
func dice(a, b []rune) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	counts := make(map[[2]rune]int, len(a)-1)
	for i := 0; i+1 < len(a); i++ {
		counts[[2]rune{a[i], a[i+1]}]++
	}
	shared := 0
	for i := 0; i+1 < len(b); i++ {
		bg := [2]rune{b[i], b[i+1]}
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)-1+len(b)-1)
}
