package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lowvibe/internal/logging"
)

var toolName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry maps tool names to handlers. It is immutable once built; every
// spec and its argument schema are checked by NewRegistry.
type Registry struct {
	specs   map[string]Spec
	order   []string
	schemas map[string]*jsonschema.Schema
}

// NewRegistry validates specs and builds a registry.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs:   make(map[string]Spec, len(specs)),
		schemas: make(map[string]*jsonschema.Schema, len(specs)),
	}
	for _, s := range specs {
		if !toolName.MatchString(s.Name) {
			return nil, fmt.Errorf("invalid tool name %q", s.Name)
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("tool already registered: %s", s.Name)
		}
		if s.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", s.Name)
		}
		for _, req := range s.Required {
			if _, ok := s.Params[req]; !ok {
				return nil, fmt.Errorf("tool %s requires undeclared argument %q", s.Name, req)
			}
		}
		compiled, err := compileArgs(s)
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid argument schema: %w", s.Name, err)
		}
		r.specs[s.Name] = s
		r.schemas[s.Name] = compiled
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

func compileArgs(s Spec) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s.schema())
	if err != nil {
		return nil, err
	}
	url := "mem://tools/" + s.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Subset returns a registry holding only the named tools.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	specs := make([]Spec, 0, len(names))
	for _, n := range names {
		s, ok := r.specs[n]
		if !ok {
			return nil, fmt.Errorf("unknown tool: %s", n)
		}
		specs = append(specs, s)
	}
	return NewRegistry(specs...)
}

// With returns a registry where the named tools are replaced or added.
func (r *Registry) With(specs ...Spec) (*Registry, error) {
	override := make(map[string]Spec, len(specs))
	for _, s := range specs {
		override[s.Name] = s
	}
	merged := make([]Spec, 0, len(r.order)+len(specs))
	for _, n := range r.order {
		if s, ok := override[n]; ok {
			merged = append(merged, s)
			delete(override, n)
			continue
		}
		merged = append(merged, r.specs[n])
	}
	for _, s := range specs {
		if _, ok := override[s.Name]; ok {
			merged = append(merged, s)
		}
	}
	return NewRegistry(merged...)
}

// Describe lists the tools for a system prompt. Required arguments are
// marked with '*'.
func (r *Registry) Describe() string {
	lines := make([]string, 0, len(r.order))
	for _, n := range r.order {
		lines = append(lines, r.specs[n].usage())
	}
	return strings.Join(lines, "\n")
}

// Dispatch runs a tool. It never returns an error: unknown tools, invalid
// arguments and panics all become failed results.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (res Result) {
	spec, ok := r.specs[name]
	if !ok {
		return Failure("unknown tool %q; available tools: %s", name, strings.Join(r.order, ", "))
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := r.schemas[name].Validate(normalize(args)); err != nil {
		return Failure("invalid arguments for %s: %s", name, validationText(err))
	}

	defer func() {
		if p := recover(); p != nil {
			logging.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			res = Failure("tool %s crashed: %v", name, p)
		}
	}()
	return spec.Handler(ctx, Args(args))
}

// normalize round-trips args through JSON so the validator sees the
// types it expects (float64 numbers, []any arrays).
func normalize(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}

func validationText(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		var parts []string
		for _, c := range ve.BasicOutput().Errors {
			if c.Error == "" || strings.HasPrefix(c.Error, "doesn't validate with") {
				continue
			}
			loc := c.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			parts = append(parts, loc+": "+c.Error)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return err.Error()
}
