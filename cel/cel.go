// Package cel filters flag store items with CEL expressions over an "item" variable, e.g.
// "item.version > 3 && !item.deleted" or "has(item.data.on) && item.data.on".
package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/encoding"
)

// Filter contains the CEL expression & the cel program used to evaluate it against items.
type Filter struct {
	Expression string
	program    cel.Program
}

// NewFilter compiles expression, which must evaluate to a bool.
func NewFilter(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}

	env, err := cel.NewEnv(
		// Items are presented as JSON-like maps.
		cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must evaluate to bool, got %v", t)
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %w", err)
	}
	return &Filter{
		Expression: expression,
		program:    p,
	}, nil
}

// itemVariable converts item to the map the expression sees.
func itemVariable(item flagstore.Item) (map[string]any, error) {
	m := map[string]any{
		"key":     item.Key,
		"version": int64(item.Version),
		"deleted": item.Deleted,
		"data":    map[string]any{},
	}
	if len(item.Data) > 0 {
		var data any
		if err := encoding.DefaultMarshaler.Unmarshal(item.Data, &data); err != nil {
			return nil, fmt.Errorf("item %s data is not valid JSON: %w", item.Key, err)
		}
		if data != nil {
			m["data"] = data
		}
	}
	return m, nil
}

// Match evaluates the expression against item.
func (f *Filter) Match(item flagstore.Item) (bool, error) {
	v, err := itemVariable(item)
	if err != nil {
		return false, err
	}
	out, _, err := f.program.Eval(map[string]any{"item": v})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL expression on item %s: %w", item.Key, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression returned %v, not a bool", out.Value())
	}
	return b, nil
}

// Apply returns the items matching the expression. The input map is not modified.
func (f *Filter) Apply(items map[string]flagstore.Item) (map[string]flagstore.Item, error) {
	r := make(map[string]flagstore.Item, len(items))
	for k, item := range items {
		ok, err := f.Match(item)
		if err != nil {
			return nil, err
		}
		if ok {
			r[k] = item
		}
	}
	return r, nil
}
