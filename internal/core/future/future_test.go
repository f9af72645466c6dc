package future_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/core/future"
)

func mustLiteral(t *testing.T, v any) *future.Literal {
	t.Helper()
	l, err := future.NewLiteral(v)
	require.NoError(t, err)
	return l
}

func TestTask_IdentityDependsOnRuleAndArgs(t *testing.T) {
	add := future.NewRule("pkg.add", func(args []any) (any, error) {
		return args[0].(float64) + args[1].(float64), nil
	})

	a2 := mustLiteral(t, 2.0)
	a3 := mustLiteral(t, 3.0)

	t1, err := future.NewTask(add, []future.Future{a2, a3})
	require.NoError(t, err)
	t2, err := future.NewTask(add, []future.Future{a2, a3})
	require.NoError(t, err)

	assert.Equal(t, t1.HashID(), t2.HashID())

	t3, err := future.NewTask(add, []future.Future{a3, a2})
	require.NoError(t, err)
	assert.NotEqual(t, t1.HashID(), t3.HashID())
}

func TestTask_ReadyOnlyAfterArgsDone(t *testing.T) {
	pending := future.NewPending()

	rule := future.NewRule("pkg.identity", func(args []any) (any, error) {
		return args[0], nil
	})

	tk, err := future.NewTask(rule, []future.Future{pending})
	require.NoError(t, err)
	assert.False(t, tk.Ready())

	fired := false
	tk.AddReadyCallback(func() { fired = true })
	assert.False(t, fired)

	require.NoError(t, pending.SetResult(5.0))
	assert.True(t, fired)
	assert.True(t, tk.Ready())

	require.NoError(t, tk.Invoke())
	v, ok := tk.Result()
	require.True(t, ok)
	assert.Equal(t, 5.0, v)
}

func TestTask_AdoptsReturnedFuture(t *testing.T) {
	inner := mustLiteral(t, "inner-value")

	outer := future.NewRule("pkg.outer", func(args []any) (any, error) {
		return inner, nil
	})

	tk, err := future.NewTask(outer, nil)
	require.NoError(t, err)
	assert.True(t, tk.Ready())
	require.NoError(t, tk.Invoke())

	adopted, ok := tk.Adopted()
	require.True(t, ok)
	assert.Equal(t, inner.HashID(), adopted.HashID())

	v, ok := tk.Result()
	require.True(t, ok)
	assert.Equal(t, "inner-value", v)
}

func TestTemplate_SubstitutesEmbeddedFutures(t *testing.T) {
	a := mustLiteral(t, "A")
	b := mustLiteral(t, "B")

	raw := map[string]any{
		"first":  a,
		"second": []any{b, "literal"},
	}

	tpl, err := future.NewTemplate(raw)
	require.NoError(t, err)
	assert.True(t, tpl.Ready())

	v, ok := tpl.Result()
	require.True(t, ok)
	m := v.(map[string]any)
	assert.Equal(t, "A", m["first"])
	assert.Equal(t, []any{"B", "literal"}, m["second"])
}

func TestTemplate_FiresOnceWhenAllEmbeddedDone(t *testing.T) {
	p1 := future.NewPending()
	p2 := future.NewPending()

	raw := map[string]any{"x": p1, "y": p2}
	tpl, err := future.NewTemplate(raw)
	require.NoError(t, err)

	count := 0
	tpl.AddDoneCallback(func() { count++ })

	require.NoError(t, p1.SetResult("1"))
	assert.False(t, tpl.Done())
	require.NoError(t, p2.SetResult("2"))
	assert.True(t, tpl.Done())
	assert.Equal(t, 1, count)
}

func TestIndexor_ProjectsAfterTargetDone(t *testing.T) {
	pair := future.NewRule("pkg.pair", func([]any) (any, error) {
		return map[string]any{"a": 10.0, "b": 20.0}, nil
	})

	tk, err := future.NewTask(pair, nil)
	require.NoError(t, err)
	require.NoError(t, tk.Invoke())

	idx := future.NewIndexor(tk, []string{"a"})
	assert.True(t, idx.Done())
	v, ok := idx.Result()
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestWrapInput_LiteralsAndTemplates(t *testing.T) {
	f, err := future.WrapInput(42.0)
	require.NoError(t, err)
	assert.True(t, f.Done())

	embedded := mustLiteral(t, "x")
	f2, err := future.WrapInput(map[string]any{"k": embedded})
	require.NoError(t, err)
	_, isTemplate := f2.(*future.Template)
	assert.True(t, isTemplate)
}
