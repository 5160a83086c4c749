package expression

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CompiledCondition is a condition string compiled once and evaluated
// repeatedly against different input environments.
type CompiledCondition struct {
	program *vm.Program
}

// CompileCondition compiles the if node's condition string: comparison
// (==, !=, <, <=, >, >=), boolean operators (&&, ||, !), dotted member
// access, and literals, per the documented restricted-subset contract.
func CompileCondition(condition string) (*CompiledCondition, error) {
	program, err := expr.Compile(condition, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return &CompiledCondition{program: program}, nil
}

// Eval runs the compiled condition against env (the node's input map) and
// coerces the result to bool. Per spec, evaluation errors yield false
// rather than propagating, so Eval never returns an error to callers that
// have chosen to treat failures as false; EvalStrict is available for
// callers that need the error.
func (c *CompiledCondition) Eval(env map[string]any) bool {
	result, err := c.EvalStrict(env)
	if err != nil {
		return false
	}
	return result
}

// EvalStrict runs the compiled condition and returns its boolean result or
// an evaluation error.
func (c *CompiledCondition) EvalStrict(env map[string]any) (bool, error) {
	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, err
	}
	truth, ok := out.(bool)
	if !ok {
		return false, nil
	}
	return truth, nil
}

// EvalCondition is a convenience one-shot form: compile then evaluate,
// returning false on either a compile or evaluation error.
func EvalCondition(condition string, env map[string]any) bool {
	compiled, err := CompileCondition(condition)
	if err != nil {
		return false
	}
	return compiled.Eval(env)
}

// EvalAny compiles and runs expr against env, returning its raw result
// uncoerced. Used where a restricted expression produces a value rather
// than a branch decision: the set node's "expression" mode and the sort
// node's key-expression mode.
func EvalAny(expression string, env map[string]any) (any, error) {
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
