// Package normalizers canonicalizes raw identity fragments before they are compared or stored
package normalizers

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register(string(models.IdentifierTypeEmail), NormalizeEmail)
	Register(string(models.IdentifierTypePhone), NormalizePhone)
	Register(string(models.IdentifierTypeDomain), NormalizeDomain)
	Register(string(models.IdentifierTypeLinkedin), NormalizeLinkedin)
	Register("name", NormalizeName)
	Register("company_name", NormalizeCompanyName)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names return the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// NormalizeIdentifier normalizes a value for the given identifier type. A value that
// normalizes to nothing yields a NormalizationError.
func NormalizeIdentifier(identifierType models.IdentifierType, value string) (string, error) {
	if _, ok := registry[string(identifierType)]; !ok {
		return "", &models.NormalizationError{Field: string(identifierType), Value: value}
	}
	normalized := Apply(value, string(identifierType))
	if normalized == "" {
		return "", &models.NormalizationError{Field: string(identifierType), Value: value}
	}
	return normalized, nil
}

// NormalizeFact normalizes the value of a fact in place of the raw one
func NormalizeFact(fact models.Fact) (models.Fact, error) {
	value, err := NormalizeIdentifier(fact.Type, fact.Value)
	if err != nil {
		return fact, err
	}
	return models.Fact{Type: fact.Type, Value: value}, nil
}

// CapitalizeName uppercases the first character and lowercases the rest
func CapitalizeName(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// NormalizeName lowercases a person's name and collapses punctuation and whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '-' || r == '.' || r == '_' {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// Alphanumeric keeps only lowercased letters and digits
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
