package session

import "fmt"

// State is the lifecycle state of a suggestion session
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// SearchState is the manual-search sub-state, meaningful only while the session is ready
type SearchState string

const (
	SearchNone      SearchState = ""
	SearchSearching SearchState = "searching"
	SearchSearched  SearchState = "searched"
)

// Event drives a state transition
type Event string

const (
	EventLoad     Event = "load"
	EventLoaded   Event = "loaded"
	EventFail     Event = "fail"
	EventSearch   Event = "search"
	EventSearched Event = "searched"
)

// TransitionError reports an event that is not legal in the current state
type TransitionError struct {
	From  string
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not allowed in state %q", e.Event, e.From)
}

var transitions = map[State]map[Event]State{
	StateIdle:    {EventLoad: StateLoading},
	StateLoading: {EventLoaded: StateReady, EventFail: StateFailed},
}

var searchTransitions = map[SearchState]map[Event]SearchState{
	SearchNone:      {EventSearch: SearchSearching},
	SearchSearching: {EventSearch: SearchSearching, EventSearched: SearchSearched},
	SearchSearched:  {EventSearch: SearchSearching},
}

// Transition returns the state reached from state on event
func Transition(state State, event Event) (State, error) {
	next, ok := transitions[state][event]
	if !ok {
		return state, &TransitionError{From: string(state), Event: event}
	}
	return next, nil
}

// SearchTransition returns the search sub-state reached on event. Searching is only
// legal once the session is ready.
func SearchTransition(state State, search SearchState, event Event) (SearchState, error) {
	if state != StateReady {
		return search, &TransitionError{From: string(state), Event: event}
	}
	next, ok := searchTransitions[search][event]
	if !ok {
		return search, &TransitionError{From: string(search), Event: event}
	}
	return next, nil
}
