package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// RisorScriptingEngine compiles and evaluates Risor expressions. The engine's
// globals are merged under any globals supplied at evaluation time, so the
// caller's run inputs and upstream outputs always win over builtins.
type RisorScriptingEngine struct {
	globals map[string]any
}

func NewRisorScriptingEngine(globals map[string]any) *RisorScriptingEngine {
	return &RisorScriptingEngine{globals: globals}
}

func (e *RisorScriptingEngine) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, err
	}

	var globalNames []string
	for name := range e.globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	compiledCode, err := compiler.Compile(ast, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, err
	}
	return &RisorScript{engine: e, code: compiledCode}, nil
}

type RisorScript struct {
	engine *RisorScriptingEngine
	code   *compiler.Code
}

func (s *RisorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	combinedGlobals := make(map[string]any)
	for name, value := range s.engine.globals {
		combinedGlobals[name] = value
	}
	for name, value := range globals {
		combinedGlobals[name] = value
	}
	value, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(combinedGlobals))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return &RisorValue{obj: value}, nil
}

type RisorValue struct {
	obj object.Object
}

func (value *RisorValue) Value() any {
	return ConvertRisorValueToGo(value.obj)
}

func (value *RisorValue) IsTruthy() bool {
	return ConvertRisorValueToBool(value.obj)
}

func (value *RisorValue) String() string {
	switch v := value.obj.(type) {
	case *object.String:
		return v.Value()
	case *object.Int:
		return fmt.Sprintf("%d", v.Value())
	case *object.Float:
		return fmt.Sprintf("%g", v.Value())
	case *object.Bool:
		return fmt.Sprintf("%t", v.Value())
	case *object.Time:
		return v.Value().Format(time.RFC3339)
	case *object.NilType:
		return ""
	case *object.List:
		var items []string
		for _, item := range v.Value() {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return strings.Join(items, ", ")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", value.obj)
	}
}

// DefaultRisorGlobals returns the builtins exposed to predicates and
// templates, restricted to deterministic functions with no side effects.
// Expressions are re-evaluated on resume, so anything time- or IO-dependent
// would make replay diverge from the recorded run.
func DefaultRisorGlobals() map[string]any {
	globals := map[string]any{}
	for name, value := range all.Builtins() {
		if deterministicBuiltins[name] {
			globals[name] = value
		}
	}
	globals["inputs"] = object.NewMap(map[string]object.Object{})
	globals["upstream"] = object.NewMap(map[string]object.Object{})
	globals["input"] = object.Nil
	return globals
}

var deterministicBuiltins = map[string]bool{
	"all":         true,
	"any":         true,
	"base64":      true,
	"bool":        true,
	"chunk":       true,
	"coalesce":    true,
	"decode":      true,
	"encode":      true,
	"error":       true,
	"errorf":      true,
	"float":       true,
	"fmt":         true,
	"getattr":     true,
	"int":         true,
	"is_hashable": true,
	"iter":        true,
	"json":        true,
	"keys":        true,
	"len":         true,
	"list":        true,
	"map":         true,
	"math":        true,
	"regexp":      true,
	"reversed":    true,
	"set":         true,
	"sorted":      true,
	"sprintf":     true,
	"string":      true,
	"strings":     true,
	"try":         true,
	"type":        true,
}
