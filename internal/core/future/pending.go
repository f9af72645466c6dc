package future

import (
	"fmt"
	"sync/atomic"

	"go.trai.ch/cellar/internal/core/hashutil"
)

var pendingCounter atomic.Uint64

// Pending is a manually-resolved Future with no rule, template, or index
// semantics of its own. It exists for two reasons: tests that need to
// control exactly when a dependency becomes ready, and adapters (e.g. the
// remote scheduler) that receive a result asynchronously from outside the
// normal Task/Template/Indexor construction paths.
type Pending struct {
	*base
	hash hashutil.Hash
}

// NewPending creates a Pending future with a unique synthetic identity; it
// is never deduplicated against anything else since it has no content to
// derive identity from ahead of time.
func NewPending() *Pending {
	n := pendingCounter.Add(1)
	return &Pending{
		base: newBase(),
		hash: hashutil.Digest(fmt.Appendf(nil, "pending:%d", n)),
	}
}

// HashID returns the pending future's synthetic identity.
func (p *Pending) HashID() hashutil.Hash { return p.hash }

// SetResult resolves the pending future, notifying dependents and firing
// done-callbacks in the standard order.
func (p *Pending) SetResult(v any) error {
	return setResult(p, p.base, v)
}
