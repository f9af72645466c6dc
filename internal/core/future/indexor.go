package future

import (
	"strconv"

	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/zerr"
)

// Indexor is a Future representing a key-path projection into another
// Future's (structured) result: task[key1][key2]... It never resolves the
// projection until the underlying future is done (spec §4.4).
type Indexor struct {
	*base

	target Future
	keys   []string
	hash   hashutil.Hash
}

// NewIndexor builds an Indexor projecting keys out of target's eventual
// result. Its identity is the SHA-1 of "@" + target-hash + "/" + joined keys.
func NewIndexor(target Future, keys []string) *Indexor {
	idx := &Indexor{
		base:   newBase(),
		target: target,
		keys:   keys,
		hash:   hashutil.HashIndexor(target.HashID(), keys),
	}
	addPending(idx, idx.base, target)
	idx.AddReadyCallback(func() {
		v, ok := target.Result()
		if !ok {
			return
		}
		projected, err := project(v, keys)
		if err != nil {
			// The underlying task's own error surfaces through its own
			// Result/done callback; projection errors here mean the shape
			// did not match and are swallowed into an unset result, which
			// session.Eval reports as "future never resolved".
			return
		}
		_ = idx.SetResult(projected)
	})
	return idx
}

// HashID returns the indexor's content-addressed identity.
func (i *Indexor) HashID() hashutil.Hash { return i.hash }

// SetResult exists for embedding symmetry; normal callers never invoke it.
func (i *Indexor) SetResult(v any) error {
	return setResult(i, i.base, v)
}

// Index returns a new Indexor chained one key deeper (task[k1][k2]...).
func (i *Indexor) Index(key string) *Indexor {
	keys := make([]string, len(i.keys)+1)
	copy(keys, i.keys)
	keys[len(i.keys)] = key
	return NewIndexor(i.target, keys)
}

func project(v any, keys []string) (any, error) {
	cur := v
	for _, k := range keys {
		switch x := cur.(type) {
		case map[string]any:
			next, ok := x[k]
			if !ok {
				return nil, zerr.With(zerr.New("indexor: key not found"), "key", k)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(k)
			if err != nil || idx < 0 || idx >= len(x) {
				return nil, zerr.With(zerr.New("indexor: index out of range"), "key", k)
			}
			cur = x[idx]
		default:
			return nil, zerr.With(zerr.New("indexor: cannot index scalar"), "key", k)
		}
	}
	return cur, nil
}
