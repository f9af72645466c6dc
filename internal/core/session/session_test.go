package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/core/future"
	"go.trai.ch/cellar/internal/core/session"
)

func TestSession_OnlyOneActive(t *testing.T) {
	s1, err := session.Open()
	require.NoError(t, err)
	defer s1.Close()

	_, err = session.Open()
	assert.Error(t, err)
}

func TestSession_Identity_SingleExecution(t *testing.T) {
	s, err := session.Open()
	require.NoError(t, err)
	defer s.Close()

	calls := 0
	add := future.NewRule("scenario.add", func(args []any) (any, error) {
		calls++
		return args[0].(float64) + args[1].(float64), nil
	})

	t1, err := s.CreateTask(add, 2.0, 3.0)
	require.NoError(t, err)
	t2, err := s.CreateTask(add, 2.0, 3.0)
	require.NoError(t, err)

	assert.Equal(t, t1.HashID(), t2.HashID())
	assert.Equal(t, 1, s.TaskCount())

	v, err := s.Eval(t1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
	assert.Equal(t, 1, calls)
}

func TestSession_Compose(t *testing.T) {
	s, err := session.Open()
	require.NoError(t, err)
	defer s.Close()

	var addRan, doubleRan bool

	add := future.NewRule("scenario.add", func(args []any) (any, error) {
		addRan = true
		return args[0].(float64) + args[1].(float64), nil
	})
	double := future.NewRule("scenario.double", func(args []any) (any, error) {
		if !addRan {
			t.Fatalf("double ran before add")
		}
		doubleRan = true
		return args[0].(float64) * 2, nil
	})

	sum, err := s.CreateTask(add, 1.0, 2.0)
	require.NoError(t, err)
	doubled, err := s.CreateTask(double, sum)
	require.NoError(t, err)

	v, err := s.Eval(doubled)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
	assert.True(t, addRan)
	assert.True(t, doubleRan)
}

func TestSession_Indexor(t *testing.T) {
	s, err := session.Open()
	require.NoError(t, err)
	defer s.Close()

	executions := 0
	pair := future.NewRule("scenario.pair", func([]any) (any, error) {
		executions++
		return map[string]any{"a": 10.0, "b": 20.0}, nil
	})

	pairTask, err := s.CreateTask(pair)
	require.NoError(t, err)

	idx := future.NewIndexor(pairTask, []string{"a"})

	v, err := s.Eval(idx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
	assert.Equal(t, 1, executions)
}

func TestSession_Resume_HashReproducibleAcrossSessions(t *testing.T) {
	// Simulates "delete the Future state; fresh session; re-evaluate":
	// since task identity depends only on rule+args, a brand new session
	// recomputes the same hash but still must execute once within itself
	// (no cross-process cache in this package alone — that's the cellar
	// adapter's job). Here we assert the identity itself is reproducible.
	add := future.NewRule("scenario.add", func(args []any) (any, error) {
		return args[0].(float64) + args[1].(float64), nil
	})

	s1, err := session.Open()
	require.NoError(t, err)
	t1, err := s1.CreateTask(add, 2.0, 3.0)
	require.NoError(t, err)
	h1 := t1.HashID()
	s1.Close()

	s2, err := session.Open()
	require.NoError(t, err)
	defer s2.Close()
	t2, err := s2.CreateTask(add, 2.0, 3.0)
	require.NoError(t, err)
	assert.Equal(t, h1, t2.HashID())
}
