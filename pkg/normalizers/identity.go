package normalizers

import (
	"strings"
	"unicode"
)

// NormalizeEmail lowercases and trims an email address. Anything without an @ is
// not an email and yields "".
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}

// NormalizePhone keeps digits and a leading +, rewriting a leading 00 to +
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	result := digits.String()
	if result == "" {
		return ""
	}

	if strings.HasPrefix(s, "+") {
		return "+" + result
	}
	if strings.HasPrefix(result, "00") {
		if rest := result[2:]; rest != "" {
			return "+" + rest
		}
		return ""
	}
	return result
}

// ExtractDomain returns the domain part of an email. ok is false unless the address
// splits on @ into exactly two non-empty parts.
func ExtractDomain(email string) (domain string, ok bool) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}

// LocalPart returns the part of an email before the @
func LocalPart(email string) string {
	local, _, found := strings.Cut(strings.TrimSpace(email), "@")
	if !found {
		return ""
	}
	return strings.ToLower(local)
}

// NormalizeDomain reduces a URL, hostname or email to a bare lowercased hostname
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return ""
	}
	return s
}

// NormalizeLinkedin canonicalizes a LinkedIn profile URL to linkedin.com/<path>
// without scheme, subdomain, query or trailing slash
func NormalizeLinkedin(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")

	if i := strings.Index(s, "linkedin.com"); i >= 0 {
		s = s[i:]
	}
	return s
}
