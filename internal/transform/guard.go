package transform

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// newGuardEnv creates the CEL environment for rule guards. Expressions see
// the record being processed as `record` and the processing time as `now`.
func newGuardEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
		cel.CrossTypeNumericComparisons(true),
	)
}

// guard is a compiled `when` expression.
type guard struct {
	expr    string
	program cel.Program
}

// compileGuard compiles expr; the expression must produce a bool.
func compileGuard(env *cel.Env, expr string) (*guard, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return &guard{expr: expr, program: program}, nil
}

// allows evaluates the guard against r.
func (g *guard) allows(r Record, now time.Time) (bool, error) {
	result, _, err := g.program.Eval(map[string]interface{}{
		"record": map[string]interface{}(r),
		"now":    now,
	})
	if err != nil {
		return false, err
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, not bool", result.Value())
	}
	return b, nil
}
