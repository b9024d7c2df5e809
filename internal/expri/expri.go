// Package expri compiles and evaluates the string-expression form of a
// flow predicate (spec.md §4.5 "Conditional"). It is a thin, cached
// wrapper around expr-lang/expr, grounded on the evaluator used by the
// conductor workflow engine in the retrieved example pack.
package expri

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// StepLookup adapts a step-result accessor into a callable expr can
// invoke as Steps("id"); expr evaluates env fields holding Go funcs as
// ordinary callables, so expressions read peer results without the env
// needing to pre-materialize every step as a map entry.
type StepLookup func(id string) any

// Env is the evaluation environment every compiled expression runs
// against: the entry's upstream input, a lookup over peer step results,
// and the run's original input.
type Env struct {
	InputData any
	Steps     StepLookup
	InitData  any
}

// Program is a compiled, reusable expression.
type Program struct {
	src  string
	prog *vm.Program
}

var (
	mu    sync.RWMutex
	cache = make(map[string]*Program)
)

// Compile parses and type-checks expression once and returns a reusable
// Program. Compiled programs are cached process-wide, keyed by source
// text, since the same condition string is typically reused across every
// run of a workflow.
func Compile(expression string) (*Program, error) {
	mu.RLock()
	if p, ok := cache[expression]; ok {
		mu.RUnlock()
		return p, nil
	}
	mu.RUnlock()

	prog, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expri: compiling %q: %w", expression, err)
	}

	p := &Program{src: expression, prog: prog}
	mu.Lock()
	cache[expression] = p
	mu.Unlock()
	return p, nil
}

// EvalBool runs the compiled program against env and returns its boolean
// result.
func (p *Program) EvalBool(env Env) (bool, error) {
	out, err := expr.Run(p.prog, env)
	if err != nil {
		return false, fmt.Errorf("expri: evaluating %q: %w", p.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expri: expression %q returned %T, want bool", p.src, out)
	}
	return b, nil
}

// String returns the expression's original source text.
func (p *Program) String() string { return p.src }
