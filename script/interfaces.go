package script

import (
	"context"
)

// Value is the result of evaluating a predicate or template expression.
type Value interface {

	// Value returns the result as a plain Go value.
	Value() any

	// String returns the string representation of the result.
	String() string

	// IsTruthy reports whether the result is truthy under the engine's
	// rules.
	IsTruthy() bool
}

// Script is a compiled expression ready for repeated evaluation.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles expression source into a Script.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
