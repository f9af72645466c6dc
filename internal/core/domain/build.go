package domain

import (
	"time"

	"go.trai.ch/cellar/internal/core/hashutil"
)

// BuildRecord is a numbered snapshot of (task set, targets) produced by a
// configure step. Builds are append-only: gc and checkout reference them
// by id, never mutate them.
type BuildRecord struct {
	ID      int64
	Created time.Time
}

// Target is a single root of a build's task tree: a human-readable virtual
// path mapped to the task hash that produces it.
type Target struct {
	BuildID  int64
	Path     string
	TaskHash hashutil.Hash
}

// Tree is a mapping from virtual path to task hash, read from a build's
// target rows. Only the targets themselves appear: their children are not
// walked, so a child task has no entry of its own.
type Tree map[string]hashutil.Hash

// Match returns the subset of the tree whose virtual paths match any of the
// given glob patterns (supporting "*", "?", "**").
func (t Tree) Match(patterns []string) Tree {
	if len(patterns) == 0 {
		return t
	}
	out := make(Tree, len(t))
	for path, h := range t {
		for _, pat := range patterns {
			if VirtualPathMatch(pat, path) {
				out[path] = h
				break
			}
		}
	}
	return out
}
