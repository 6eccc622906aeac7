package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package demo

import "fmt"

// Greeter says hello.
type Greeter struct{ name string }

// Hello greets.
// Twice documented.
func (g *Greeter) Hello() string {
	return fmt.Sprintf("hello %s", g.name)
}

func Add(a, b int) int {
	return a + b
}
`

const pySource = `import os


class Store:
    def get(self, key):
        return key

    @staticmethod
    def make():
        return Store()


def helper(x):
    return x * 2
`

func astRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	env, root := newEnv(t)
	r, err := NewRegistry(ASTTools(env)...)
	require.NoError(t, err)
	return r, root
}

func TestGoOutlineAndRead(t *testing.T) {
	r, root := astRegistry(t)
	put(t, root, "demo.go", goSource)
	ctx := context.Background()

	res := r.Dispatch(ctx, "get_file_outline", map[string]any{"path": "demo.go"})
	require.True(t, res.OK(), res.Error)
	assert.Contains(t, res.Content, "type Greeter (lines 5-6)")
	assert.Contains(t, res.Content, "method Greeter.Hello (lines 8-12)")
	assert.Contains(t, res.Content, "func Add (lines 14-16)")

	res = r.Dispatch(ctx, "read_function", map[string]any{"path": "demo.go", "name": "Hello"})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "// Hello greets.\n// Twice documented.\nfunc (g *Greeter) Hello() string {\n\treturn fmt.Sprintf(\"hello %s\", g.name)\n}\n", res.Content)

	res = r.Dispatch(ctx, "read_function", map[string]any{"path": "demo.go", "name": "Missing"})
	assert.Contains(t, res.Error, `function "Missing" not found`)
}

func TestGoEditAddRemove(t *testing.T) {
	r, root := astRegistry(t)
	put(t, root, "demo.go", goSource)
	ctx := context.Background()

	res := r.Dispatch(ctx, "edit_function", map[string]any{
		"path": "demo.go", "name": "Add",
		"code": "func Add(a, b int) int {\n\treturn b + a\n}",
	})
	require.True(t, res.OK(), res.Error)
	assert.Contains(t, read(t, root, "demo.go"), "return b + a")

	res = r.Dispatch(ctx, "add_function", map[string]any{
		"path": "demo.go", "code": "func Sub(a, b int) int {\n\treturn a - b\n}",
	})
	require.True(t, res.OK(), res.Error)
	assert.Contains(t, read(t, root, "demo.go"), "}\n\nfunc Sub(a, b int) int {")

	res = r.Dispatch(ctx, "remove_function", map[string]any{"path": "demo.go", "name": "Greeter.Hello"})
	require.True(t, res.OK(), res.Error)
	src := read(t, root, "demo.go")
	assert.NotContains(t, src, "Hello")
	assert.NotContains(t, src, "Twice documented")
}

func TestEditRejectsBrokenSource(t *testing.T) {
	r, root := astRegistry(t)
	put(t, root, "demo.go", goSource)

	res := r.Dispatch(context.Background(), "edit_function", map[string]any{
		"path": "demo.go", "name": "Add", "code": "func Add(a, b int) int {\n\treturn a +\n",
	})
	assert.Contains(t, res.Error, "syntax errors")
	assert.Equal(t, goSource, read(t, root, "demo.go"))
}

func TestPythonOutlineAndEdit(t *testing.T) {
	r, root := astRegistry(t)
	put(t, root, "store.py", pySource)
	ctx := context.Background()

	res := r.Dispatch(ctx, "get_file_outline", map[string]any{"path": "store.py"})
	require.True(t, res.OK(), res.Error)
	assert.Contains(t, res.Content, "class Store")
	assert.Contains(t, res.Content, "method Store.get")
	assert.Contains(t, res.Content, "method Store.make")
	assert.Contains(t, res.Content, "function helper")

	res = r.Dispatch(ctx, "read_function", map[string]any{"path": "store.py", "name": "make"})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "    @staticmethod\n    def make():\n        return Store()\n", res.Content)

	res = r.Dispatch(ctx, "edit_function", map[string]any{
		"path": "store.py", "name": "helper", "code": "def helper(x):\n    return x * 3",
	})
	require.True(t, res.OK(), res.Error)
	assert.Contains(t, read(t, root, "store.py"), "return x * 3\n")
}

func TestASTUnsupportedLanguage(t *testing.T) {
	r, root := astRegistry(t)
	put(t, root, "x.rs", "fn main() {}")

	res := r.Dispatch(context.Background(), "get_file_outline", map[string]any{"path": "x.rs"})
	assert.Contains(t, res.Error, "support .go and .py")
}
