package future

import "go.trai.ch/cellar/internal/core/hashutil"

// Template is a JSON-shaped value that may embed Futures as placeholders
// anywhere in a nested map/slice/scalar tree. Its identity is the SHA-1 of
// the literal prefix "{}" followed by its canonical shape (futures hashed by
// HashID, not by value, since their value may not exist yet).
type Template struct {
	*base

	raw      any
	embedded []Future
	hash     hashutil.Hash
}

// futureMarkerKey tags the canonical-shape placeholder object so that two
// templates embedding different futures at the same position never collide
// with a legitimate user map containing the same key.
const futureMarkerKey = "$cellar.future"

// NewTemplate parses raw, extracting any embedded Futures. The returned
// Template fires its ready-callback — substituting every placeholder with
// the referenced future's result — exactly once, when all embedded futures
// are done (open question §8.1: once on readiness, not per-substitution).
func NewTemplate(raw any) (*Template, error) {
	embedded := collectFutures(raw, nil)
	shape, err := canonicalShape(raw)
	if err != nil {
		return nil, err
	}
	canon, err := hashutil.CanonicalJSON(shape)
	if err != nil {
		return nil, err
	}

	t := &Template{
		base:     newBase(),
		raw:      raw,
		embedded: embedded,
		hash:     hashutil.HashTemplate(canon),
	}

	for _, f := range embedded {
		addPending(t, t.base, f)
	}

	t.AddReadyCallback(func() {
		_ = t.SetResult(substitute(t.raw))
	})

	return t, nil
}

// HashID returns the template's content-addressed identity.
func (t *Template) HashID() hashutil.Hash { return t.hash }

// SetResult exists so Template satisfies the same embedding pattern as the
// other variants; normal callers never invoke it directly.
func (t *Template) SetResult(v any) error {
	return setResult(t, t.base, v)
}

// Embedded returns the Futures discovered while parsing the template.
func (t *Template) Embedded() []Future { return t.embedded }

func collectFutures(v any, acc []Future) []Future {
	switch x := v.(type) {
	case Future:
		return append(acc, x)
	case map[string]any:
		for _, k := range hashutil.SortedKeys(x) {
			acc = collectFutures(x[k], acc)
		}
		return acc
	case []any:
		for _, e := range x {
			acc = collectFutures(e, acc)
		}
		return acc
	default:
		return acc
	}
}

func canonicalShape(v any) (any, error) {
	switch x := v.(type) {
	case Future:
		return map[string]any{futureMarkerKey: x.HashID().String()}, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			shaped, err := canonicalShape(e)
			if err != nil {
				return nil, err
			}
			out[k] = shaped
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			shaped, err := canonicalShape(e)
			if err != nil {
				return nil, err
			}
			out[i] = shaped
		}
		return out, nil
	default:
		return x, nil
	}
}

func substitute(v any) any {
	switch x := v.(type) {
	case Future:
		result, _ := x.Result()
		return result
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = substitute(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = substitute(e)
		}
		return out
	default:
		return x
	}
}
