// Package session runs one resolution request: it loads automatic suggestions for a raw
// fact, layers manual searches on top and hands the user's choice to the link executor
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/ranking"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrUnknownCandidate is returned when linking to an entity the session never displayed
var ErrUnknownCandidate = errors.New("entity is not among the displayed candidates")

// Observer receives the outcome of every strategy run
type Observer interface {
	ObserveStrategy(kind models.EntityKind, strategy string, duration time.Duration, candidates int, err error)
}

// Session is a single suggestion session. It is safe for concurrent use.
type Session struct {
	id         string
	fact       models.RawFact
	query      matching.Query
	strategies []matching.Strategy
	createdAt  time.Time

	log      ectologger.Logger
	store    store.EntityStore
	executor *linking.Executor
	observer Observer
	cfg      Config

	mu          sync.Mutex
	state       State
	searchState SearchState
	searchGen   int
	searchText  string
	suggestions []models.MatchCandidate
	manual      []models.MatchCandidate
	failures    []string
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Fact returns the raw fact the session resolves
func (s *Session) Fact() models.RawFact {
	return s.fact
}

// Query returns the normalized query
func (s *Session) Query() matching.Query {
	return s.query
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SearchState returns the current manual-search sub-state
func (s *Session) SearchState() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchState
}

// Failures lists the strategies that failed or timed out during Load
func (s *Session) Failures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failures...)
}

// Suggestions returns the ranked automatic suggestions
func (s *Session) Suggestions() []models.MatchCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MatchCandidate(nil), s.suggestions...)
}

// Displayed returns the suggestions followed by manual results for entities that are
// not already suggested
func (s *Session) Displayed() []models.MatchCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed()
}

func (s *Session) displayed() []models.MatchCandidate {
	result := append([]models.MatchCandidate(nil), s.suggestions...)
	suggested := make(map[string]bool, len(s.suggestions))
	for _, candidate := range s.suggestions {
		suggested[candidate.Entity.ID] = true
	}
	for _, candidate := range s.manual {
		if !suggested[candidate.Entity.ID] {
			result = append(result, candidate)
		}
	}
	return result
}

func (s *Session) fire(event Event) error {
	next, err := Transition(s.state, event)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Load runs every applicable strategy concurrently and waits for all of them. A failing
// or slow strategy contributes nothing; only cancellation of ctx fails the session.
func (s *Session) Load(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "session.Session.Load")
	defer span.End()

	s.mu.Lock()
	if err := s.fire(EventLoad); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	fields := map[string]any{"session_id": s.id, "kind": s.fact.Kind}

	results := make([][]models.MatchCandidate, len(s.strategies))
	failures := make([]string, len(s.strategies))

	// a plain group: one strategy's error must not cancel its siblings
	var g errgroup.Group
	for i, strategy := range s.strategies {
		if !strategy.Applies(s.query) {
			continue
		}
		g.Go(func() error {
			found, err := s.runStrategy(ctx, strategy)
			if err != nil {
				s.log.WithContext(ctx).WithFields(fields).WithError(err).WithField("strategy", strategy.Name()).Warn("Strategy contributed no candidates")
				failures[i] = strategy.Name()
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		_ = s.fire(EventFail)
		s.log.WithContext(ctx).WithFields(fields).WithError(err).Warn("Session abandoned while loading")
		return err
	}

	s.suggestions = ranking.Aggregate(s.cfg.AutoLimit, results...)
	s.failures = s.failures[:0]
	for _, name := range failures {
		if name != "" {
			s.failures = append(s.failures, name)
		}
	}

	s.log.WithContext(ctx).WithFields(fields).WithFields(map[string]any{"suggestions": len(s.suggestions), "failed_strategies": len(s.failures)}).Debug("Session loaded")
	return s.fire(EventLoaded)
}

func (s *Session) runStrategy(ctx context.Context, strategy matching.Strategy) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "session.Session.runStrategy", attribute.String("strategy", strategy.Name()))
	defer span.End()

	strategyCtx, cancel := context.WithTimeout(ctx, s.cfg.StrategyTimeout)
	defer cancel()

	start := time.Now()
	found, err := strategy.Run(strategyCtx, s.query)
	if err == nil && strategyCtx.Err() != nil && ctx.Err() == nil {
		// the result arrived after the deadline
		err = strategyCtx.Err()
	}
	if err != nil {
		if errors.Is(strategyCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &models.StrategyTimeoutError{Strategy: strategy.Name(), Timeout: s.cfg.StrategyTimeout}
		} else {
			err = &models.StrategyQueryError{Strategy: strategy.Name(), Err: err}
		}
		found = nil
	}

	tracing.Fail(span, err)
	if s.observer != nil {
		s.observer.ObserveStrategy(s.fact.Kind, strategy.Name(), time.Since(start), len(found), err)
	}
	return found, err
}

// Search runs a manual search and returns its top results. It is legal only once the
// session is ready. A newer search supersedes the results of an older one. A failed
// search keeps the previous results and returns them with the error.
func (s *Session) Search(ctx context.Context, text string) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "session.Session.Search")
	defer span.End()

	s.mu.Lock()
	next, err := SearchTransition(s.state, s.searchState, EventSearch)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.searchState = next
	s.searchGen++
	generation := s.searchGen
	s.mu.Unlock()

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.StrategyTimeout)
	defer cancel()

	start := time.Now()
	found, searchErr := matching.ManualSearch(searchCtx, s.store, s.fact.Kind, text)
	if searchErr != nil {
		searchErr = &models.StrategyQueryError{Strategy: string(models.MatchTypeManualSearch), Err: searchErr}
		found = nil
	}
	if s.observer != nil {
		s.observer.ObserveStrategy(s.fact.Kind, string(models.MatchTypeManualSearch), time.Since(start), len(found), searchErr)
	}
	results := ranking.Aggregate(s.cfg.ManualLimit, found)

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.searchGen {
		return results, searchErr
	}
	if searchErr != nil {
		// keep what is on screen
		if s.searchText == "" && s.manual == nil {
			s.searchState = SearchNone
		} else {
			s.searchState = SearchSearched
		}
		return append([]models.MatchCandidate(nil), s.manual...), searchErr
	}
	s.searchText = text
	s.manual = results
	if next, err := SearchTransition(s.state, s.searchState, EventSearched); err == nil {
		s.searchState = next
	}
	return results, nil
}

// Link attaches the fact to the candidate's entity. The candidate must be displayed by
// this session. A zero fact links the primary fact of the query.
func (s *Session) Link(ctx context.Context, candidate models.MatchCandidate, fact models.Fact) (*linking.LinkResult, error) {
	return s.LinkEntity(ctx, candidate.Entity.ID, fact)
}

// LinkEntity is Link addressed by entity id
func (s *Session) LinkEntity(ctx context.Context, entityID string, fact models.Fact) (*linking.LinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "session.Session.LinkEntity")
	defer span.End()

	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return nil, &TransitionError{From: string(state), Event: "link"}
	}
	known := false
	for _, candidate := range s.displayed() {
		if candidate.Entity.ID == entityID {
			known = true
			break
		}
	}
	s.mu.Unlock()

	if !known {
		return nil, ErrUnknownCandidate
	}

	if fact == (models.Fact{}) {
		var ok bool
		if fact, ok = s.PrimaryFact(); !ok {
			return nil, fmt.Errorf("no fact to link: %w", &models.NormalizationError{Field: "fact"})
		}
	}

	return s.executor.LinkIdentifier(ctx, entityID, fact, s.fact.IssueIDs...)
}

// CreateNew creates a new entity from the seed. An empty kind uses the session kind and
// a seed without facts carries every fact of the query.
func (s *Session) CreateNew(ctx context.Context, kind models.EntityKind, seed models.EntitySeed) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "session.Session.CreateNew")
	defer span.End()

	if kind == "" {
		kind = s.fact.Kind
	}
	if len(seed.Facts) == 0 {
		seed.Facts = s.QueryFacts()
	}
	return s.executor.CreateEntityFromFact(ctx, kind, seed, s.fact.IssueIDs...)
}

// PrimaryFact is the fact a plain link attaches: the email for contacts, the domain for companies
func (s *Session) PrimaryFact() (models.Fact, bool) {
	switch {
	case s.fact.Kind == models.EntityKindCompany && s.query.Domain != "":
		return models.Fact{Type: models.IdentifierTypeDomain, Value: s.query.Domain}, true
	case s.query.Email != "":
		return models.Fact{Type: models.IdentifierTypeEmail, Value: s.query.Email}, true
	case s.query.Phone != "":
		return models.Fact{Type: models.IdentifierTypePhone, Value: s.query.Phone}, true
	case s.query.LinkedinURL != "":
		return models.Fact{Type: models.IdentifierTypeLinkedin, Value: s.query.LinkedinURL}, true
	}
	return models.Fact{}, false
}

// QueryFacts returns every normalized fact of the query that fits the session kind
func (s *Session) QueryFacts() []models.Fact {
	var facts []models.Fact
	add := func(identifierType models.IdentifierType, value string) {
		if value != "" {
			facts = append(facts, models.Fact{Type: identifierType, Value: value})
		}
	}
	if s.fact.Kind == models.EntityKindCompany {
		add(models.IdentifierTypeDomain, s.query.Domain)
	} else {
		add(models.IdentifierTypeEmail, s.query.Email)
	}
	add(models.IdentifierTypePhone, s.query.Phone)
	add(models.IdentifierTypeLinkedin, s.query.LinkedinURL)
	return facts
}
