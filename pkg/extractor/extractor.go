// Package extractor pulls a raw fact out of an arbitrary JSON payload with JMESPath
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrNoIdentity is returned when a payload carries nothing that can be resolved
var ErrNoIdentity = errors.New("payload carries no identity")

// Paths are the JMESPath expressions for each raw fact field. Empty paths are skipped.
type Paths struct {
	Kind         string
	IssueType    string
	Email        string
	Name         string
	Phone        string
	Domain       string
	SampleEmails string
}

type Extractor struct {
	paths Paths
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// New compiles every configured path up front so a bad expression fails at startup
func New(paths Paths) (*Extractor, error) {
	e := &Extractor{
		paths: paths,
		cache: make(map[string]*jmespath.JMESPath),
	}
	for _, expression := range []string{paths.Kind, paths.IssueType, paths.Email, paths.Name, paths.Phone, paths.Domain, paths.SampleEmails} {
		if expression == "" {
			continue
		}
		if _, err := e.compile(expression); err != nil {
			return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
		}
	}
	return e, nil
}

// Extract builds a raw fact and the issue type from a JSON payload. The kind falls back
// to contact when a person identifier is present and to company for a bare domain.
func (e *Extractor) Extract(payload []byte) (models.RawFact, string, error) {
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return models.RawFact{}, "", fmt.Errorf("payload is not json: %w", err)
	}

	fact := models.RawFact{
		Kind:         models.EntityKind(strings.ToLower(e.str(e.paths.Kind, data))),
		Email:        e.str(e.paths.Email, data),
		DisplayName:  e.str(e.paths.Name, data),
		Phone:        e.str(e.paths.Phone, data),
		Domain:       e.str(e.paths.Domain, data),
		SampleEmails: e.strs(e.paths.SampleEmails, data),
	}

	if !fact.Kind.IsValid() {
		switch {
		case fact.Email != "" || fact.Phone != "" || fact.DisplayName != "":
			fact.Kind = models.EntityKindContact
		case fact.Domain != "":
			fact.Kind = models.EntityKindCompany
		default:
			return models.RawFact{}, "", ErrNoIdentity
		}
	}

	issueType := e.str(e.paths.IssueType, data)
	if issueType == "" {
		issueType = "unknown_" + string(fact.Kind)
	}
	return fact, issueType, nil
}

func (e *Extractor) search(expression string, data any) any {
	if expression == "" {
		return nil
	}
	compiled, err := e.compile(expression)
	if err != nil {
		return nil
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil
	}
	return result
}

func (e *Extractor) str(expression string, data any) string {
	switch v := e.search(expression, data).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", v))
	}
	return ""
}

func (e *Extractor) strs(expression string, data any) []string {
	switch v := e.search(expression, data).(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case []any:
		var result []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				result = append(result, strings.TrimSpace(s))
			}
		}
		return result
	}
	return nil
}

func (e *Extractor) compile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()
	return compiled, nil
}
