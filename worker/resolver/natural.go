package resolver

import (
	"sort"
	"strings"
)

// SortNatural orders paths so numeric runs compare by value:
// page2.png sorts before page10.png.
func SortNatural(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return NaturalLess(paths[i], paths[j])
	})
}

func NaturalLess(a, b string) bool {
	return naturalCompare(a, b) < 0
}

func naturalCompare(a, b string) int {
	ta := naturalTokens(strings.ToLower(a))
	tb := naturalTokens(strings.ToLower(b))

	n := len(ta)
	if len(tb) < n {
		n = len(tb)
	}
	for i := 0; i < n; i++ {
		var c int
		if i%2 == 1 {
			c = compareNumeric(ta[i], tb[i])
		} else {
			c = strings.Compare(ta[i], tb[i])
		}
		if c != 0 {
			return c
		}
	}
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	// Numerically equal but textually distinct ("01" vs "1"): keep a stable
	// total order by falling back to the raw strings.
	return strings.Compare(a, b)
}

// naturalTokens splits into alternating text and digit runs. The first token
// is always text (possibly empty) so even indexes are text, odd are numbers.
func naturalTokens(s string) []string {
	var tokens []string
	if s != "" && isDigit(s[0]) {
		tokens = append(tokens, "")
	}
	i := 0
	for i < len(s) {
		j := i
		if isDigit(s[i]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
		} else {
			for j < len(s) && !isDigit(s[j]) {
				j++
			}
		}
		tokens = append(tokens, s[i:j])
		i = j
	}
	return tokens
}

func compareNumeric(x, y string) int {
	xt := strings.TrimLeft(x, "0")
	yt := strings.TrimLeft(y, "0")
	if len(xt) != len(yt) {
		if len(xt) < len(yt) {
			return -1
		}
		return 1
	}
	return strings.Compare(xt, yt)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
