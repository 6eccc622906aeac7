package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// symbol is a named top-level or class-level definition in a source file.
type symbol struct {
	Name      string
	Kind      string
	Start     int // byte offset of the first line, doc comments included
	End       int // byte offset just past the last line
	StartLine int
	EndLine   int
}

func languageFor(path string) (*sitter.Language, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage(), "go", nil
	case ".py", ".pyw":
		return python.GetLanguage(), "python", nil
	}
	return nil, "", fmt.Errorf("function tools support .go and .py files, not %s", filepath.Base(path))
}

// parseSymbols parses src and lists its definitions. broken reports
// syntax errors anywhere in the file.
func parseSymbols(ctx context.Context, path string, src []byte) (syms []symbol, broken bool, err error) {
	lang, name, err := languageFor(path)
	if err != nil {
		return nil, false, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	defer tree.Close()

	root := tree.RootNode()
	switch name {
	case "go":
		syms = goSymbols(root, src)
	case "python":
		syms = pythonSymbols(root, src, "")
	}
	return syms, root.HasError(), nil
}

func goSymbols(root *sitter.Node, src []byte) []symbol {
	var out []symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				out = append(out, span(n, src, name.Content(src), "func"))
			}
		case "method_declaration":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			full := name.Content(src)
			if recv := receiverType(n.ChildByFieldName("receiver"), src); recv != "" {
				full = recv + "." + full
			}
			out = append(out, span(n, src, full, "method"))
		case "type_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				spec := n.NamedChild(j)
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					continue
				}
				if name := spec.ChildByFieldName("name"); name != nil {
					out = append(out, span(n, src, name.Content(src), "type"))
				}
			}
		}
	}
	return out
}

// receiverType turns "(s *Server[T])" into "Server".
func receiverType(recv *sitter.Node, src []byte) string {
	if recv == nil {
		return ""
	}
	text := strings.Trim(recv.Content(src), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	t := strings.TrimLeft(fields[len(fields)-1], "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t
}

func pythonSymbols(node *sitter.Node, src []byte, prefix string) []symbol {
	var out []symbol
	for i := 0; i < int(node.NamedChildCount()); i++ {
		outer := node.NamedChild(i)
		def := outer
		if outer.Type() == "decorated_definition" {
			def = outer.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		name := def.ChildByFieldName("name")
		if name == nil {
			continue
		}
		full := prefix + name.Content(src)
		switch def.Type() {
		case "function_definition":
			kind := "function"
			if prefix != "" {
				kind = "method"
			}
			out = append(out, span(outer, src, full, kind))
		case "class_definition":
			out = append(out, span(outer, src, full, "class"))
			if body := def.ChildByFieldName("body"); body != nil {
				out = append(out, pythonSymbols(body, src, full+".")...)
			}
		}
	}
	return out
}

// span widens n to whole lines and pulls in directly preceding comments.
func span(n *sitter.Node, src []byte, name, kind string) symbol {
	start := n.StartByte()
	startLine := n.StartPoint().Row
	for prev := n.PrevNamedSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevNamedSibling() {
		if prev.EndPoint().Row+1 < startLine {
			break
		}
		start = prev.StartByte()
		startLine = prev.StartPoint().Row
	}
	s := lineStart(src, int(start))
	e := lineEnd(src, int(n.EndByte()))
	return symbol{
		Name:      name,
		Kind:      kind,
		Start:     s,
		End:       e,
		StartLine: int(startLine) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
}

func lineStart(src []byte, i int) int {
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}

func lineEnd(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i < len(src) {
		i++
	}
	return i
}

func findSymbol(syms []symbol, name string) (symbol, error) {
	var matches []symbol
	for _, s := range syms {
		if s.Kind == "type" || s.Kind == "class" {
			continue
		}
		if s.Name == name || strings.HasSuffix(s.Name, "."+name) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return symbol{}, fmt.Errorf("function %q not found", name)
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return symbol{}, fmt.Errorf("function %q is ambiguous: %s", name, strings.Join(names, ", "))
}

// ASTTools returns the function-level tools: get_file_outline,
// read_function, add_function, edit_function and remove_function.
func ASTTools(env *Env) []Spec {
	a := astTools{env: env}
	pathParam := str("a .go or .py file relative to the repository root")
	nameParam := str("function name; methods may be qualified as Type.method")
	return []Spec{
		{
			Name:        "get_file_outline",
			Description: "List the functions, methods and types of a source file with line ranges.",
			Params:      map[string]any{"path": pathParam},
			Required:    []string{"path"},
			Handler:     a.outline,
		},
		{
			Name:        "read_function",
			Description: "Return the full source of one function or method, doc comments included.",
			Params:      map[string]any{"path": pathParam, "name": nameParam},
			Required:    []string{"path", "name"},
			Handler:     a.read,
		},
		{
			Name:        "add_function",
			Description: "Add a function to a file, after the named function or at the end. The file must still parse.",
			Params: map[string]any{
				"path":  pathParam,
				"code":  str("complete function source"),
				"after": str("insert after this function"),
			},
			Required: []string{"path", "code"},
			Handler:  a.add,
		},
		{
			Name:        "edit_function",
			Description: "Replace a whole function with new source. The file must still parse.",
			Params: map[string]any{
				"path": pathParam,
				"name": nameParam,
				"code": str("complete replacement source"),
			},
			Required: []string{"path", "name", "code"},
			Handler:  a.edit,
		},
		{
			Name:        "remove_function",
			Description: "Delete a function and its doc comment.",
			Params:      map[string]any{"path": pathParam, "name": nameParam},
			Required:    []string{"path", "name"},
			Handler:     a.remove,
		},
	}
}

type astTools struct {
	env *Env
}

func (a astTools) load(ctx context.Context, args Args) (abs, rel string, src []byte, syms []symbol, res *Result) {
	abs, rel, err := a.env.resolve(args.String("path"))
	if err != nil {
		r := Failure("%v", err)
		return "", "", nil, nil, &r
	}
	src, err = os.ReadFile(abs)
	if err != nil {
		r := Failure("file not found: %s", rel)
		return "", "", nil, nil, &r
	}
	syms, _, err = parseSymbols(ctx, abs, src)
	if err != nil {
		r := Failure("%v", err)
		return "", "", nil, nil, &r
	}
	return abs, rel, src, syms, nil
}

func (a astTools) outline(ctx context.Context, args Args) Result {
	_, rel, _, syms, res := a.load(ctx, args)
	if res != nil {
		return *res
	}
	if len(syms) == 0 {
		return Success("no functions or types in " + rel)
	}
	var b strings.Builder
	for _, s := range syms {
		fmt.Fprintf(&b, "%s %s (lines %d-%d)\n", s.Kind, s.Name, s.StartLine, s.EndLine)
	}
	return Result{Content: b.String(), Data: map[string]any{"path": rel, "count": len(syms)}}
}

func (a astTools) read(ctx context.Context, args Args) Result {
	_, rel, src, syms, res := a.load(ctx, args)
	if res != nil {
		return *res
	}
	s, err := findSymbol(syms, args.String("name"))
	if err != nil {
		return Failure("%v in %s", err, rel)
	}
	return Result{
		Content: string(src[s.Start:s.End]),
		Data:    map[string]any{"path": rel, "name": s.Name, "start_line": s.StartLine, "end_line": s.EndLine},
	}
}

func (a astTools) add(ctx context.Context, args Args) Result {
	abs, rel, src, syms, res := a.load(ctx, args)
	if res != nil {
		return *res
	}
	code := ensureNewline(args.String("code"))
	at := len(src)
	if after := args.String("after"); after != "" {
		s, err := findSymbol(syms, after)
		if err != nil {
			return Failure("%v in %s", err, rel)
		}
		at = s.End
	}
	prefix := "\n"
	if at > 0 && at == len(src) && src[at-1] != '\n' {
		prefix = "\n\n"
	}
	updated := string(src[:at]) + prefix + code + string(src[at:])
	return a.commit(ctx, abs, rel, string(src), updated, "added function to "+rel)
}

func (a astTools) edit(ctx context.Context, args Args) Result {
	abs, rel, src, syms, res := a.load(ctx, args)
	if res != nil {
		return *res
	}
	s, err := findSymbol(syms, args.String("name"))
	if err != nil {
		return Failure("%v in %s", err, rel)
	}
	updated := string(src[:s.Start]) + ensureNewline(args.String("code")) + string(src[s.End:])
	return a.commit(ctx, abs, rel, string(src), updated, fmt.Sprintf("replaced %s in %s", s.Name, rel))
}

func (a astTools) remove(ctx context.Context, args Args) Result {
	abs, rel, src, syms, res := a.load(ctx, args)
	if res != nil {
		return *res
	}
	s, err := findSymbol(syms, args.String("name"))
	if err != nil {
		return Failure("%v in %s", err, rel)
	}
	end := s.End
	// Drop one blank separator line too.
	if end < len(src) && src[end] == '\n' {
		end++
	}
	updated := string(src[:s.Start]) + string(src[end:])
	return a.commit(ctx, abs, rel, string(src), updated, fmt.Sprintf("removed %s from %s", s.Name, rel))
}

// commit writes updated only if it parses cleanly.
func (a astTools) commit(ctx context.Context, abs, rel, before, updated, msg string) Result {
	if _, broken, err := parseSymbols(ctx, abs, []byte(updated)); err != nil {
		return Failure("%v", err)
	} else if broken {
		return Failure("the edit would leave %s with syntax errors; nothing was written", rel)
	}
	if err := a.env.write(abs, updated); err != nil {
		return Failure("failed to write %s: %v", rel, err)
	}
	return Result{Content: msg, Data: map[string]any{"path": rel, "diff": lineDiff(rel, before, updated)}}
}

func ensureNewline(s string) string {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
