package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when an entity or issue does not exist
var ErrNotFound = errors.New("not found")

// ErrPrimaryTaken is returned by stores when an insert asked for the primary slot
// of a type the entity already has a primary identifier for
var ErrPrimaryTaken = errors.New("primary identifier already set")

// ErrBusy is returned when a competing request holds a resource for longer than the
// caller was willing to wait. The request can be retried.
var ErrBusy = errors.New("resource busy")

// NormalizationError reports a fragment that normalizes to nothing usable.
// Resolution treats the fragment as absent.
type NormalizationError struct {
	Field string
	Value string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize %s %q", e.Field, e.Value)
}

// StrategyTimeoutError reports a strategy whose store calls exceeded the strategy timeout
type StrategyTimeoutError struct {
	Strategy string
	Timeout  time.Duration
}

func (e *StrategyTimeoutError) Error() string {
	return fmt.Sprintf("strategy %s timed out after %s", e.Strategy, e.Timeout)
}

// StrategyQueryError reports a strategy whose store query failed
type StrategyQueryError struct {
	Strategy string
	Err      error
}

func (e *StrategyQueryError) Error() string {
	return fmt.Sprintf("strategy %s failed: %v", e.Strategy, e.Err)
}

func (e *StrategyQueryError) Unwrap() error {
	return e.Err
}

// ConflictError reports an identifier that is already claimed by a different entity
type ConflictError struct {
	Type    IdentifierType `json:"type"`
	Value   string         `json:"value"`
	OwnerID string         `json:"owner_id,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.OwnerID == "" {
		return fmt.Sprintf("%s %q is already linked to another entity", e.Type, e.Value)
	}
	return fmt.Sprintf("%s %q is already linked to entity %s", e.Type, e.Value, e.OwnerID)
}

// FactFailure pairs a fact with the reason it could not be linked
type FactFailure struct {
	Fact    Fact   `json:"fact"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewFactFailure records a failed fact
func NewFactFailure(fact Fact, err error) FactFailure {
	return FactFailure{Fact: fact, Message: err.Error(), Err: err}
}

// PartialMergeError reports a merge where some facts were linked and others failed.
// Linked facts stay linked; re-running the merge is the recovery path.
type PartialMergeError struct {
	TargetID string        `json:"target_id"`
	Linked   []Fact        `json:"linked"`
	Failed   []FactFailure `json:"failed"`
}

func (e *PartialMergeError) Error() string {
	return fmt.Sprintf("merge into %s linked %d of %d facts", e.TargetID, len(e.Linked), len(e.Linked)+len(e.Failed))
}
