package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
)

func TestTaskRecord_ComputeHash_Deterministic(t *testing.T) {
	t1 := &domain.TaskRecord{
		Command: "echo hi",
		Inputs:  map[string]hashutil.Hash{"a.txt": hashutil.HashBytes([]byte("a"))},
	}
	t2 := &domain.TaskRecord{
		Command: "echo hi",
		Inputs:  map[string]hashutil.Hash{"a.txt": hashutil.HashBytes([]byte("a"))},
	}

	h1, err := t1.ComputeHash()
	require.NoError(t, err)
	h2, err := t2.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	t2.Command = "echo bye"
	h3, err := t2.ComputeHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestTaskRecord_OutputsOnlyWhenDone(t *testing.T) {
	tr := &domain.TaskRecord{State: domain.StateClean}
	assert.Nil(t, tr.Outputs)
	assert.False(t, tr.State.Skippable())

	tr.State = domain.StateDone
	tr.Outputs = map[string]hashutil.Hash{"out": hashutil.HashBytes([]byte("x"))}
	assert.True(t, tr.State.Skippable())
}

func TestVirtualPathMatch(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/*/c", "a/b/c", true},
		{"a/*/c", "a/b/d/c", false},
		{"a/**/c", "a/b/d/c", true},
		{"a/**/c", "a/c", true},
		{"a/**", "a/b/c/d", true},
		{"a/?/c", "a/b/c", true},
		{"a/?/c", "a/bb/c", false},
	}
	for _, tc := range cases {
		got := domain.VirtualPathMatch(tc.pattern, tc.path)
		assert.Equalf(t, tc.want, got, "pattern=%q path=%q", tc.pattern, tc.path)
	}
}

func TestTree_Match(t *testing.T) {
	tree := domain.Tree{
		"pkg/a/build": hashutil.HashBytes([]byte("1")),
		"pkg/b/build": hashutil.HashBytes([]byte("2")),
		"pkg/a/test":  hashutil.HashBytes([]byte("3")),
	}

	matched := tree.Match([]string{"pkg/*/build"})
	assert.Len(t, matched, 2)
	_, ok := matched["pkg/a/test"]
	assert.False(t, ok)

	all := tree.Match(nil)
	assert.Equal(t, tree, all)
}
