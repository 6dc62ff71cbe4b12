package buildsys

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) ToTask() (*Task, error) {
	return nil, nil
}

func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

func (s TaskCmdScript) ToStep() *TaskCmdStep {
	return nil
}

type TaskCmdTaskRef struct {
	Task *Task
}

func (t TaskCmdTaskRef) ToTask() (*Task, error) {
	return t.Task, nil
}

func (t TaskCmdTaskRef) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

func (t TaskCmdTaskRef) ToStep() *TaskCmdStep {
	return nil
}

// TaskCmdStep calls a native step with the arguments captured from the task script.
type TaskCmdStep struct {
	Step string
	Args StepArgs
}

func (s TaskCmdStep) ToTask() (*Task, error) {
	return nil, nil
}

func (s TaskCmdStep) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

func (s TaskCmdStep) ToStep() *TaskCmdStep {
	return &s
}

// String renders the call roughly the way it was written in the task script.
func (s TaskCmdStep) String() string {
	return s.Step + "(" + s.Args.String() + ")"
}

type TaskCmd interface {
	ToTask() (*Task, error)
	ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error)
	ToStep() *TaskCmdStep
}

// Task contains the processed values passed to task() by the task script
type Task struct {
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Hidden       bool
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// StepArgs holds the keyword arguments of a step call. Paths are stored as strings.
type StepArgs struct {
	Strings map[string]string
	Lists   map[string][]string
	Bools   map[string]bool
}

// NewStepArgs returns an empty argument set
func NewStepArgs() StepArgs {
	return StepArgs{
		Strings: map[string]string{},
		Lists:   map[string][]string{},
		Bools:   map[string]bool{},
	}
}

// Str returns the string argument name or def if it wasn't passed.
func (a StepArgs) Str(name, def string) string {
	if value, ok := a.Strings[name]; ok {
		return value
	}
	return def
}

// List returns the list argument name. A single string is treated as a list with one item.
func (a StepArgs) List(name string) []string {
	if value, ok := a.Lists[name]; ok {
		return value
	}
	if value, ok := a.Strings[name]; ok {
		return []string{value}
	}
	return nil
}

// Bool returns the bool argument name or def if it wasn't passed.
func (a StepArgs) Bool(name string, def bool) bool {
	if value, ok := a.Bools[name]; ok {
		return value
	}
	return def
}

// Has reports whether the argument was passed at all.
func (a StepArgs) Has(name string) bool {
	_, s := a.Strings[name]
	_, l := a.Lists[name]
	_, b := a.Bools[name]
	return s || l || b
}

// Require fails if any of the passed arguments is missing.
func (a StepArgs) Require(names ...string) error {
	for _, name := range names {
		if !a.Has(name) {
			return eris.Errorf("missing required argument %s", name)
		}
	}
	return nil
}

func (a StepArgs) String() string {
	parts := make([]string, 0, len(a.Strings)+len(a.Lists)+len(a.Bools))
	for k, v := range a.Strings {
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	for k, v := range a.Lists {
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	for k, v := range a.Bools {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}

	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// Implement starlark.Value for *Task

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task" to indicate this type
func (t *Task) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *Task) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not hashable
func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// starlarkStep is the value returned by step builtins; it only becomes useful once it's passed
// to task(cmds=[...]).
type starlarkStep struct {
	call TaskCmdStep
}

func (s *starlarkStep) String() string {
	return "<Step " + s.call.String() + ">"
}

func (s *starlarkStep) Type() string {
	return "step"
}

func (s *starlarkStep) Freeze() {}

func (s *starlarkStep) Truth() starlark.Bool {
	return starlark.True
}

func (s *starlarkStep) Hash() (uint32, error) {
	return 0, eris.New("step is not a hashable type")
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
