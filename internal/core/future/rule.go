package future

// RuleFunc is a pure function registered under a stable fully-qualified
// name. It receives the resolved results of its argument futures, in order,
// and returns either a plain value or another Future (enabling rules to
// return composite graphs built from further session.CreateTask calls).
type RuleFunc func(args []any) (any, error)

// Rule pairs a RuleFunc with the stable name used in task-identity hashing.
// Callers construct one explicitly instead of relying on language-specific
// decorator/qualname machinery (design notes §9).
type Rule struct {
	Name string
	Fn   RuleFunc
}

// NewRule registers fn under name. name must be stable across runs: it is
// part of every task hash derived from this rule.
func NewRule(name string, fn RuleFunc) Rule {
	return Rule{Name: name, Fn: fn}
}
