package future

import "go.trai.ch/cellar/internal/core/hashutil"

// Literal is a trivially-done Future wrapping a plain value that contains no
// embedded futures. WrapInput uses it so every argument to session.CreateTask
// can be treated uniformly as a Future, even literal scalars.
type Literal struct {
	*base
	hash hashutil.Hash
}

// NewLiteral wraps v as an already-done Future. Its identity is the hash of
// its canonical JSON form, so two equal literals collapse to the same hash
// (consistent with how Template hashes its canonical shape).
func NewLiteral(v any) (*Literal, error) {
	canon, err := hashutil.CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	l := &Literal{base: newBase(), hash: hashutil.Digest(canon)}
	// Ready immediately: no pending deps were ever added.
	if err := setResult(l, l.base, v); err != nil {
		return nil, err
	}
	return l, nil
}

// HashID returns the literal's content-addressed identity.
func (l *Literal) HashID() hashutil.Hash { return l.hash }

// SetResult is not meaningful after construction; Literal is always done.
func (l *Literal) SetResult(v any) error {
	return setResult(l, l.base, v)
}
