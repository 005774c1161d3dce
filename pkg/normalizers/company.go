package normalizers

import (
	"regexp"
	"strings"
)

var (
	tldSuffixPattern   = regexp.MustCompile(`\.(com|net|org|io|co|uk|it|de|fr|es|eu)$`)
	legalSuffixPattern = regexp.MustCompile(`[\s,]+(ltd|llc|inc|corp|srl|spa|gmbh|sa|ag|plc)\.?$`)
)

// NormalizeCompanyName reduces a company name to a comparison key: lowercase, without a
// trailing TLD or legal suffix, without spaces and punctuation
func NormalizeCompanyName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = tldSuffixPattern.ReplaceAllString(s, "")
	s = legalSuffixPattern.ReplaceAllString(s, "")
	return Alphanumeric(s)
}

// CompanyNamesSimilar reports whether two company names probably name the same company
func CompanyNamesSimilar(a, b string) bool {
	n1 := NormalizeCompanyName(a)
	n2 := NormalizeCompanyName(b)
	if n1 == "" || n2 == "" {
		return false
	}
	if n1 == n2 {
		return true
	}

	// containment covers prefixes too
	if len(n1) >= 4 && strings.Contains(n2, n1) {
		return true
	}
	if len(n2) >= 4 && strings.Contains(n1, n2) {
		return true
	}

	shorter, longer := n1, n2
	if len(n2) < len(n1) {
		shorter, longer = n2, n1
	}
	prefixLen := len(shorter) * 8 / 10
	if prefixLen >= 4 && strings.HasPrefix(longer, shorter[:prefixLen]) {
		return true
	}

	if len(n1) >= 5 && len(n2) >= 5 {
		maxAllowed := max(1, max(len(n1), len(n2))*15/100)
		if LevenshteinDistance(n1, n2) <= maxAllowed {
			return true
		}
	}

	return false
}

// LevenshteinDistance calculates the edit distance between two strings
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)
	for j := range prevRow {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}
