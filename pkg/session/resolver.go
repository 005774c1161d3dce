package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/domainmatch"
	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/ranking"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config tunes sessions
type Config struct {
	StrategyTimeout time.Duration
	AutoLimit       int
	ManualLimit     int
	SnapshotTTL     time.Duration
}

// DefaultConfig returns the standard session configuration
func DefaultConfig() Config {
	return Config{
		StrategyTimeout: 3 * time.Second,
		AutoLimit:       ranking.DefaultAutoLimit,
		ManualLimit:     ranking.DefaultManualLimit,
		SnapshotTTL:     30 * time.Minute,
	}
}

// Resolver is the entry point of resolution: it turns a raw fact into a loaded session
type Resolver struct {
	log       ectologger.Logger
	store     store.EntityStore
	matcher   *domainmatch.Matcher
	executor  *linking.Executor
	snapshots SnapshotStore
	observer  Observer
	cfg       Config
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithSnapshotStore persists sessions so they can be continued by id
func WithSnapshotStore(snapshots SnapshotStore) ResolverOption {
	return func(r *Resolver) {
		r.snapshots = snapshots
	}
}

// WithObserver reports strategy outcomes to the observer
func WithObserver(observer Observer) ResolverOption {
	return func(r *Resolver) {
		r.observer = observer
	}
}

// NewResolver creates a resolver
func NewResolver(log ectologger.Logger, entities store.EntityStore, matcher *domainmatch.Matcher, executor *linking.Executor, cfg Config, opts ...ResolverOption) *Resolver {
	defaults := DefaultConfig()
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = defaults.StrategyTimeout
	}
	if cfg.AutoLimit == 0 {
		cfg.AutoLimit = defaults.AutoLimit
	}
	if cfg.ManualLimit == 0 {
		cfg.ManualLimit = defaults.ManualLimit
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaults.SnapshotTTL
	}

	r := &Resolver{log: log, store: entities, matcher: matcher, executor: executor, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSession builds an idle session for the raw fact. Malformed fragments of the fact are
// logged and ignored.
func (r *Resolver) NewSession(ctx context.Context, fact models.RawFact) (*Session, error) {
	if !fact.Kind.IsValid() {
		return nil, fmt.Errorf("unsupported entity kind %q", fact.Kind)
	}

	query, problems := matching.NewQuery(fact)
	for _, problem := range problems {
		r.log.WithContext(ctx).WithError(problem).Debug("Ignoring malformed fact fragment")
	}

	return &Session{
		id:          uuid.New().String(),
		fact:        fact,
		query:       query,
		strategies:  matching.ForKind(fact.Kind, r.store, r.matcher),
		createdAt:   time.Now().UTC(),
		log:         r.log,
		store:       r.store,
		executor:    r.executor,
		observer:    r.observer,
		cfg:         r.cfg,
		state:       StateIdle,
		searchState: SearchNone,
	}, nil
}

// Resolve creates a session for the fact, loads its suggestions and saves it when a
// snapshot store is configured
func (r *Resolver) Resolve(ctx context.Context, fact models.RawFact) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "session.Resolver.Resolve")
	defer span.End()

	s, err := r.NewSession(ctx, fact)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}

	r.log.WithContext(ctx).WithFields(map[string]any{
		"session_id":  s.ID(),
		"kind":        fact.Kind,
		"suggestions": len(s.Suggestions()),
	}).Info("Resolved fact")
	return s, nil
}

// Save stores the session snapshot. Without a snapshot store it does nothing.
func (r *Resolver) Save(ctx context.Context, s *Session) error {
	if r.snapshots == nil {
		return nil
	}
	return r.snapshots.Save(ctx, s.Snapshot(), r.cfg.SnapshotTTL)
}

// Get restores a saved session. It returns models.ErrNotFound for unknown or expired ids
// and when no snapshot store is configured.
func (r *Resolver) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "session.Resolver.Get")
	defer span.End()

	if r.snapshots == nil {
		return nil, models.ErrNotFound
	}
	snapshot, err := r.snapshots.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Restore(*snapshot), nil
}

// Restore rebuilds a session from a snapshot without re-running its strategies
func (r *Resolver) Restore(snapshot Snapshot) *Session {
	query, _ := matching.NewQuery(snapshot.Fact)
	return &Session{
		id:          snapshot.ID,
		fact:        snapshot.Fact,
		query:       query,
		strategies:  matching.ForKind(snapshot.Fact.Kind, r.store, r.matcher),
		createdAt:   snapshot.CreatedAt,
		log:         r.log,
		store:       r.store,
		executor:    r.executor,
		observer:    r.observer,
		cfg:         r.cfg,
		state:       snapshot.State,
		searchState: snapshot.SearchState,
		searchText:  snapshot.SearchText,
		suggestions: append([]models.MatchCandidate(nil), snapshot.Suggestions...),
		manual:      append([]models.MatchCandidate(nil), snapshot.Manual...),
		failures:    append([]string(nil), snapshot.Failures...),
	}
}
