package future

// WrapInput normalizes an arbitrary argument into a Future, per spec §4.4:
// if x is already a Future, return it unchanged; otherwise parse it as a
// Template — if it embeds no futures, wrap it as a trivially-done Literal
// instead, so callers never have to special-case plain values.
func WrapInput(x any) (Future, error) {
	if f, ok := x.(Future); ok {
		return f, nil
	}

	tpl, err := NewTemplate(x)
	if err != nil {
		return nil, err
	}
	if len(tpl.Embedded()) > 0 {
		return tpl, nil
	}
	return NewLiteral(x)
}

// WrapOutput is WrapInput, except a value with no embedded futures is
// returned as the raw literal value rather than wrapped in a Future —
// useful when a rule result only sometimes needs to track a dependency.
func WrapOutput(x any) (any, error) {
	if f, ok := x.(Future); ok {
		return f, nil
	}

	tpl, err := NewTemplate(x)
	if err != nil {
		return nil, err
	}
	if len(tpl.Embedded()) > 0 {
		return tpl, nil
	}
	return x, nil
}
