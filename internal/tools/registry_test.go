package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSpec(name string) Spec {
	return Spec{
		Name:        name,
		Description: "echo the text",
		Params:      map[string]any{"text": str("text"), "n": integer("count")},
		Required:    []string{"text"},
		Handler: func(ctx context.Context, args Args) Result {
			return Success(args.String("text"))
		},
	}
}

func TestNewRegistryValidatesSpecs(t *testing.T) {
	_, err := NewRegistry(echoSpec("echo"), echoSpec("echo"))
	assert.ErrorContains(t, err, "already registered")

	noHandler := echoSpec("x")
	noHandler.Handler = nil
	_, err = NewRegistry(noHandler)
	assert.ErrorContains(t, err, "no handler")

	_, err = NewRegistry(echoSpec("Bad Name"))
	assert.ErrorContains(t, err, "invalid tool name")

	undeclared := echoSpec("y")
	undeclared.Required = []string{"missing"}
	_, err = NewRegistry(undeclared)
	assert.ErrorContains(t, err, "undeclared")

	badSchema := echoSpec("z")
	badSchema.Params = map[string]any{"text": map[string]any{"type": "no-such-type"}}
	badSchema.Required = nil
	_, err = NewRegistry(badSchema)
	assert.ErrorContains(t, err, "invalid argument schema")
}

func TestDispatch(t *testing.T) {
	boom := Spec{Name: "boom", Handler: func(context.Context, Args) Result { panic("kaput") }}
	r, err := NewRegistry(echoSpec("echo"), boom)
	require.NoError(t, err)
	ctx := context.Background()

	res := r.Dispatch(ctx, "echo", map[string]any{"text": "hi"})
	assert.True(t, res.OK())
	assert.Equal(t, "hi", res.Content)

	res = r.Dispatch(ctx, "nope", nil)
	assert.Contains(t, res.Error, `unknown tool "nope"`)
	assert.Contains(t, res.Error, "echo, boom")

	res = r.Dispatch(ctx, "echo", map[string]any{})
	assert.Contains(t, res.Error, "invalid arguments for echo")

	res = r.Dispatch(ctx, "echo", map[string]any{"text": "hi", "n": "three"})
	assert.Contains(t, res.Error, "invalid arguments")

	res = r.Dispatch(ctx, "boom", nil)
	assert.Contains(t, res.Error, "crashed: kaput")
}

func TestSubsetWithAndDescribe(t *testing.T) {
	r, err := NewRegistry(echoSpec("a"), echoSpec("b"), echoSpec("c"))
	require.NoError(t, err)

	sub, err := r.Subset("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sub.Names())
	assert.False(t, sub.Has("b"))

	_, err = r.Subset("zzz")
	assert.Error(t, err)

	replaced := echoSpec("b")
	replaced.Description = "replaced"
	w, err := r.With(replaced, echoSpec("d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, w.Names())
	assert.Contains(t, w.Describe(), "- b(n, text*): replaced")
}

func TestResultPayload(t *testing.T) {
	assert.JSONEq(t, `{"content":"ok","n":1}`, Result{Content: "ok", Data: map[string]any{"n": 1}}.Payload())
	assert.JSONEq(t, `{"error":"bad"}`, Failure("bad").Payload())
}

func TestArgs(t *testing.T) {
	a := Args{"i": float64(3), "s": "x", "b": true, "l": []any{"p", 2.0, "q"}, "n": []any{1.0, 2.0}}
	assert.Equal(t, 3, a.Int("i", 0))
	assert.Equal(t, 7, a.Int("missing", 7))
	assert.Equal(t, "x", a.String("s"))
	assert.True(t, a.Bool("b"))
	assert.Equal(t, []string{"p", "q"}, a.Strings("l"))
	assert.Equal(t, []int{1, 2}, a.Ints("n"))
}
