// Package exampletools provides the one reference tool the end-to-end
// scenarios in spec.md 8 exercise (S2-S4). Tool business logic itself is
// out of scope (spec.md 1); this is the fixture a real deployment would
// replace with its own catalogue.
package exampletools

import (
	"fmt"

	"github.com/rjsadow/agentproto/internal/toolregistry"
)

// RegisterBuiltins registers the "calculate" tool into reg.
func RegisterBuiltins(reg *toolregistry.Registry) error {
	return reg.Register(toolregistry.Tool{
		Name:        "calculate",
		Description: "Perform a basic arithmetic operation on two numbers.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"operation", "a", "b"},
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []any{"add", "subtract", "multiply", "divide"},
				},
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
		},
		Handler: calculate,
	})
}

func calculate(_ toolregistry.ExecContext, args map[string]any) (toolregistry.Result, error) {
	op, _ := args["operation"].(string)
	a := toFloat(args["a"])
	b := toFloat(args["b"])

	switch op {
	case "add":
		return toolregistry.TextResult(fmt.Sprintf("%v", a+b), false), nil
	case "subtract":
		return toolregistry.TextResult(fmt.Sprintf("%v", a-b), false), nil
	case "multiply":
		return toolregistry.TextResult(fmt.Sprintf("%v", a*b), false), nil
	case "divide":
		if b == 0 {
			return toolregistry.TextResult("cannot divide by zero", true), nil
		}
		return toolregistry.TextResult(fmt.Sprintf("%v", a/b), false), nil
	default:
		return toolregistry.TextResult(fmt.Sprintf("unsupported operation: %q", op), true), nil
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
