// Package selector narrows the set of processes to migrate with an expression
// evaluated against process metadata.
//
// Expressions use the expr language and see these variables:
//
//	pid      int                 process ID
//	cwd      string              working directory
//	comm     string              short command name
//	uid      int                 real user ID (-1 if unknown)
//	env      map[string]string   environment variables
//	args     []string            command-line arguments
//	cmdline  string              arguments joined with spaces
//
// Example: `comm != "sshd" && uid >= 1000`.
package selector

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mrzor/cwd-migrate/internal/procmeta"
)

// Selector is a compiled boolean expression. A nil *Selector matches every
// process.
type Selector struct {
	rawExpr string
	program *vm.Program
}

// New compiles expression. An empty expression yields a nil Selector.
func New(expression string) (*Selector, error) {
	if expression == "" {
		return nil, nil
	}

	program, err := expr.Compile(expression, expr.Env(typeEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile selector %q: %w", expression, err)
	}

	return &Selector{
		rawExpr: expression,
		program: program,
	}, nil
}

// String returns the source expression.
func (s *Selector) String() string {
	if s == nil {
		return ""
	}
	return s.rawExpr
}

// Match evaluates the selector for one process.
func (s *Selector) Match(metadata *procmeta.ProcessMetadata) (bool, error) {
	if s == nil {
		return true, nil
	}
	if metadata == nil {
		return false, fmt.Errorf("no metadata available")
	}

	output, err := expr.Run(s.program, evalEnv(metadata))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate selector: %w", err)
	}

	matched, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("selector returned %T, want bool", output)
	}
	return matched, nil
}

// typeEnv defines the variables available for type checking.
func typeEnv() map[string]interface{} {
	return map[string]interface{}{
		"pid":     0,
		"cwd":     "",
		"comm":    "",
		"uid":     0,
		"env":     map[string]string{},
		"args":    []string{},
		"cmdline": "",
	}
}

func evalEnv(md *procmeta.ProcessMetadata) map[string]interface{} {
	environ := md.Environ
	if environ == nil {
		environ = map[string]string{}
	}
	args := md.Args
	if args == nil {
		args = []string{}
	}
	return map[string]interface{}{
		"pid":     md.PID,
		"cwd":     md.Cwd,
		"comm":    md.Comm,
		"uid":     md.UID,
		"env":     environ,
		"args":    args,
		"cmdline": md.CmdlineFull,
	}
}
