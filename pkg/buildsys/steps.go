package buildsys

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// StepFunc implements a native step. args contains the keyword arguments from the task script.
type StepFunc func(ctx context.Context, sc *StepContext, args StepArgs) error

// StepRegistry maps step names (as used in task scripts) to their implementation
type StepRegistry map[string]StepFunc

// StepContext gives steps access to the task they're running in.
type StepContext struct {
	Task        string
	Base        string
	ProjectRoot string
	Env         map[string]string
	Stdout      io.Writer
	Stderr      io.Writer
}

// Path resolves p relative to the task's base directory. A leading // refers to the project root.
func (sc *StepContext) Path(p string) string {
	return joinPath(sc.ProjectRoot, sc.Base, p)
}

// Resolve expands the passed glob patterns relative to the task's base directory.
func (sc *StepContext) Resolve(patterns []string) ([]string, error) {
	return ResolvePatterns(sc.ProjectRoot, sc.Base, patterns)
}

// Display shortens p for log messages.
func (sc *StepContext) Display(p string) string {
	return simplifyProjectPath(sc.ProjectRoot, p)
}

// Log returns the context's logger annotated with the task name.
func (sc *StepContext) Log(ctx context.Context) *zerolog.Logger {
	logger := log(ctx).With().Str("task", sc.Task).Logger()
	return &logger
}

// Exec runs an external command in the task's base directory through the shell runtime.
func (sc *StepContext) Exec(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return eris.New("no command passed")
	}

	stdout := sc.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := sc.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	runner, err := newShellRunner(sc.Base, expand.ListEnviron(mergeEnv(sc.Env)...), stdout, stderr)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	cmd := &syntax.CallExpr{Args: make([]*syntax.Word, len(args))}
	for idx, arg := range args {
		cmd.Args[idx] = literalWord(filepath.ToSlash(arg))
	}

	sc.Log(ctx).Info().Bool("command", true).Msg(printNode(cmd))
	return runner.Run(ctx, cmd)
}
