package domain

import (
	"strings"
	"time"

	"go.trai.ch/cellar/internal/core/hashutil"
)

// State is one of the lifecycle states a persisted task record can be in.
type State string

const (
	// StateClean means the task has never run, or was reset.
	StateClean State = "CLEAN"
	// StateRunning means an executor currently owns the task.
	StateRunning State = "RUNNING"
	// StateDone means the task ran locally and outputs are sealed.
	StateDone State = "DONE"
	// StateDoneRemote means a remote engine reported the task DONE and it
	// was merged into the local index without re-execution.
	StateDoneRemote State = "DONEREMOTE"
	// StateError means the last run raised or the executor returned non-nil.
	StateError State = "ERROR"
	// StateInterrupted means the task was RUNNING when the controller shut down.
	StateInterrupted State = "INTERRUPTED"
)

// IsTerminal reports whether the state will not change without an explicit
// reset or re-run.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateDoneRemote, StateError, StateInterrupted:
		return true
	default:
		return false
	}
}

// Skippable reports whether a task in this state can be skipped by the
// scheduler instead of re-executed.
func (s State) Skippable() bool {
	return s == StateDone || s == StateDoneRemote
}

// ChildLink declares that an input file at a path-in-sandbox is actually
// another task's output or input: (child-name, path-in-child).
type ChildLink struct {
	Child InternedString
	Path  InternedString
}

// TaskRecord is the persisted representation of a task: its identity,
// sandbox layout, and (once DONE) its outputs.
//
// Invariant 3: Outputs is non-nil only when State is StateDone, or
// StateDoneRemote after a remote merge; callers must not populate Outputs
// for any other state.
type TaskRecord struct {
	Hash       hashutil.Hash
	Command    string
	Inputs     map[string]hashutil.Hash
	Symlinks   map[string]string
	Children   map[string]hashutil.Hash
	ChildLinks map[string]ChildLink
	Outputs    map[string]hashutil.Hash // nil unless State is StateDone or StateDoneRemote
	State      State
	Created    time.Time
}

// TaskJSON is the canonical wire form (v2) used to compute a task's hash.
// Field order in the struct is irrelevant: hashutil.CanonicalJSON sorts
// object keys, so only the content of each field affects the hash.
type TaskJSON struct {
	Command    string               `json:"command"`
	Inputs     map[string]string    `json:"inputs"`
	Symlinks   map[string]string    `json:"symlinks"`
	Children   map[string]string    `json:"children"`
	ChildLinks map[string][2]string `json:"childlinks"`
}

// ToJSON converts a TaskRecord to its canonical wire representation.
func (t *TaskRecord) ToJSON() TaskJSON {
	inputs := make(map[string]string, len(t.Inputs))
	for k, v := range t.Inputs {
		inputs[k] = v.String()
	}
	children := make(map[string]string, len(t.Children))
	for k, v := range t.Children {
		children[k] = v.String()
	}
	childlinks := make(map[string][2]string, len(t.ChildLinks))
	for k, v := range t.ChildLinks {
		childlinks[k] = [2]string{v.Child.String(), v.Path.String()}
	}
	return TaskJSON{
		Command:    t.Command,
		Inputs:     inputs,
		Symlinks:   t.Symlinks,
		Children:   children,
		ChildLinks: childlinks,
	}
}

// ComputeHash derives the task's content-addressed identity from its JSON
// form, matching spec invariant 1: a pure function of rule identity and
// input hashes once children/inputs are fully resolved hashes.
func (t *TaskRecord) ComputeHash() (hashutil.Hash, error) {
	canon, err := hashutil.CanonicalJSON(t.ToJSON())
	if err != nil {
		return "", err
	}
	return hashutil.Digest(canon), nil
}

// VirtualPathMatch reports whether a virtual path matches a glob-like
// pattern supporting "*", "?", and "**" for multi-segment wildcards.
func VirtualPathMatch(pattern, path string) bool {
	return matchSegments(splitPath(pattern), splitPath(path))
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	head := pattern[0]
	if head == "**" {
		if matchSegments(pattern[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pattern, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	if !globSegmentMatch(head, path[0]) {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

func globSegmentMatch(pattern, segment string) bool {
	ok, err := matchGlobRunes([]rune(pattern), []rune(segment))
	if err != nil {
		return pattern == segment
	}
	return ok
}

// matchGlobRunes implements "*" and "?" matching over a single path segment.
func matchGlobRunes(pattern, segment []rune) (bool, error) {
	var pi, si int
	var starIdx = -1
	var starMatch int

	for si < len(segment) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == segment[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			starIdx = pi
			starMatch = si
			pi++
		case starIdx != -1:
			pi = starIdx + 1
			starMatch++
			si = starMatch
		default:
			return false, nil
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}

	return pi == len(pattern), nil
}
