// Package script wraps the embedded JavaScript engine behind the small
// compile/evaluate contract the behavior engine needs. Compilation produces a
// Program that callers may cache and re-run against any number of scopes.
package script

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Engine owns a single JavaScript runtime. It is not safe for concurrent use;
// the tick loop is single-threaded and owns the engine for the duration of a
// tick, which is the one caller this design needs.
type Engine struct {
	vm           *goja.Runtime
	bound        map[string]struct{}
	compileCount int
}

// Program is a compiled script, reusable across scopes and ticks.
type Program struct {
	prg *goja.Program
	src string
}

// Source returns the original script text.
func (p *Program) Source() string {
	if p == nil {
		return ""
	}
	return p.src
}

// New creates a fresh engine.
func New() *Engine {
	return &Engine{
		vm:    goja.New(),
		bound: make(map[string]struct{}),
	}
}

// Compile parses the script once. The result may be evaluated repeatedly with
// different scopes; this is what the expression cache stores.
func (e *Engine) Compile(src string) (*Program, error) {
	prg, err := goja.Compile("expr", src, false)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	e.compileCount++
	return &Program{prg: prg, src: src}, nil
}

// CompileCount reports how many scripts have been compiled, for cache probes.
func (e *Engine) CompileCount() int {
	return e.compileCount
}

// Eval runs a compiled program with the scope's bindings as globals and syncs
// mutated bindings back into the scope afterwards, so side-effecting scripts
// observe and update per-instance variables.
func (e *Engine) Eval(p *Program, scope *Scope) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("eval: nil program")
	}
	e.bind(scope)
	val, err := e.vm.RunProgram(p.prg)
	e.sync(scope)
	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// EvalBool runs a compiled program and reports its boolean result. A script
// error or a non-boolean result yields ok=false, never a hard failure.
func (e *Engine) EvalBool(p *Program, scope *Scope) (bool, bool) {
	v, err := e.Eval(p, scope)
	if err != nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// EvalNumber runs a compiled program and normalizes integer or floating
// results to float64.
func (e *Engine) EvalNumber(p *Program, scope *Scope) (float64, bool) {
	v, err := e.Eval(p, scope)
	if err != nil {
		return 0, false
	}
	return toFloat(v)
}

// EvalString evaluates raw source against the scope and returns the result as
// a string. Message templates go through here: the text is wrapped in a
// template literal so `${...}` expressions resolve against scope variables.
func (e *Engine) EvalString(src string, scope *Scope) (string, error) {
	e.bind(scope)
	val, err := e.vm.RunString(src)
	e.sync(scope)
	if err != nil {
		return "", err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", nil
	}
	return val.String(), nil
}

// templateEscaper neutralizes the characters that would terminate or escape
// the template literal the text gets wrapped in. ${...} stays live.
var templateEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// EvalTemplate interpolates a `${...}` template against the scope.
func (e *Engine) EvalTemplate(text string, scope *Scope) (string, error) {
	return e.EvalString("`"+templateEscaper.Replace(text)+"`", scope)
}

// bind installs the scope's variables as runtime globals, clearing leftovers
// from the previously bound scope so instances never see each other's state.
func (e *Engine) bind(scope *Scope) {
	next := make(map[string]struct{}, scope.Len())
	for _, name := range scope.Names() {
		v, _ := scope.Get(name)
		_ = e.vm.Set(name, v)
		next[name] = struct{}{}
	}
	global := e.vm.GlobalObject()
	for name := range e.bound {
		if _, keep := next[name]; !keep {
			_ = global.Delete(name)
		}
	}
	e.bound = next
}

// sync writes mutated globals back into the scope. Only names the scope
// already binds are tracked; scripts introduce new per-instance state through
// variable nodes, not ad-hoc globals.
func (e *Engine) sync(scope *Scope) {
	for _, name := range scope.Names() {
		val := e.vm.Get(name)
		if val == nil || goja.IsUndefined(val) {
			continue
		}
		prev, _ := scope.Get(name)
		next := val.Export()
		if !shallowEqual(prev, next) {
			scope.Set(name, next)
		}
	}
}

func shallowEqual(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bf, ok := toFloat(b)
		return ok && av == bf
	case int64:
		bf, ok := toFloat(b)
		return ok && float64(av) == bf
	case string:
		bs, ok := b.(string)
		return ok && av == bs
	case bool:
		bb, ok := b.(bool)
		return ok && av == bb
	}
	return a == nil && b == nil
}
