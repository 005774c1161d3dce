package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func recorder(events *[]string, name string, parents ...string) Func {
	return Func{
		Name:    name,
		Parents: parents,
		StartFunc: func(context.Context) error {
			*events = append(*events, "start "+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			*events = append(*events, "stop "+name)
			return nil
		},
	}
}

func TestStartOrdersByDependency(t *testing.T) {
	var events []string
	s := newTestStartup(1)
	s.AddDependency(recorder(&events, "http", "database", "redis"))
	s.AddDependency(recorder(&events, "database"))
	s.AddDependency(recorder(&events, "redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start redis", "start http"}, events)
	assert.Equal(t, StatusStarted, s.Status("http"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop http", "stop redis", "stop database"}, events)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartRetriesFailedDependency(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(Func{Name: "database", StartFunc: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartGivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Func{Name: "kafka", StartFunc: func(context.Context) error {
		return errors.New("no brokers")
	}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "no brokers")
	assert.Equal(t, StatusFailed, s.Status("kafka"))
}

func TestStartDoesNotRestartStartedDependencies(t *testing.T) {
	dbStarts := 0
	failures := 1
	s := newTestStartup(2)
	s.AddDependency(Func{Name: "database", StartFunc: func(context.Context) error {
		dbStarts++
		return nil
	}})
	s.AddDependency(Func{Name: "migrations", Parents: []string{"database"}, StartFunc: func(context.Context) error {
		if failures > 0 {
			failures--
			return errors.New("locked")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, dbStarts)
}

func TestStartRejectsUnknownAndCyclicDependencies(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Func{Name: "http", Parents: []string{"missing"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency 'missing'")

	s = newTestStartup(1)
	s.AddDependency(Func{Name: "a", Parents: []string{"b"}})
	s.AddDependency(Func{Name: "b", Parents: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "dependency cycle")
}
