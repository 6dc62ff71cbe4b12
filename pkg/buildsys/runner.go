package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ToolBinary is the executable that provides the cross-platform rm, mv and mkdir commands.
// It defaults to the running executable.
var ToolBinary = ""

func getTaskEnv(task *Task) expand.Environ {
	return expand.ListEnviron(mergeEnv(task.Env)...)
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv":
			fallthrough
		case "rm":
			fallthrough
		case "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append([]string{toolBinary()}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

func toolBinary() string {
	if ToolBinary != "" {
		return ToolBinary
	}

	self, err := os.Executable()
	if err != nil {
		return "tool"
	}
	return self
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func newShellRunner(dir string, env expand.Environ, stdout, stderr io.Writer) (*interp.Runner, error) {
	return interp.New(
		interp.Dir(dir),
		interp.Env(env),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
}

func literalWord(value string) *syntax.Word {
	var wordPart syntax.WordPart

	if value == "" || strings.ContainsAny(value, " $'\"*?[]{}()<>|&;\\`~#") {
		node := new(syntax.SglQuoted)
		node.Value = value
		wordPart = node
	} else {
		node := new(syntax.Lit)
		node.Value = value
		wordPart = node
	}

	return &syntax.Word{Parts: []syntax.WordPart{wordPart}}
}

func printNode(node syntax.Node) string {
	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	err := printer.Print(&strBuffer, node)
	if err != nil {
		return fmt.Sprintf("%+v", node)
	}
	return strBuffer.String()
}

// Runner executes tasks from a TaskList.
type Runner struct {
	ProjectRoot string
	Tasks       TaskList
	Steps       StepRegistry
	// DryRun only logs the commands that would be run
	DryRun bool
	// Force runs the requested tasks even if they're up to date. Dependencies are still checked.
	Force bool
	// Jobs is the maximum number of tasks that run at the same time
	Jobs   int
	Stdout io.Writer
	Stderr io.Writer
}

type runState struct {
	lock   sync.Mutex
	status map[string]bool
}

// mark records that a task started. It fails if the task is already running (recursion) and
// reports whether it has already finished.
func (s *runState) mark(name string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	done, ok := s.status[name]
	if ok {
		if done {
			return true, nil
		}
		return false, eris.Errorf("Task %s was called recursively", name)
	}

	s.status[name] = false
	return false, nil
}

func (s *runState) done(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.status[name]
}

func (s *runState) finish(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.status[name] = true
}

func (s *runState) reset(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.status, name)
}

// Plan builds the graph for the passed targets and validates it for this runner's settings.
func (r *Runner) Plan(targets ...string) (*Graph, error) {
	graph, err := NewGraph(r.Tasks, targets)
	if err != nil {
		return nil, err
	}

	if r.jobs() > 1 {
		err = graph.CheckOutputs(r.ProjectRoot)
		if err != nil {
			return nil, err
		}
	}

	return graph, nil
}

func (r *Runner) jobs() int {
	if r.Jobs < 1 {
		return 1
	}
	return r.Jobs
}

// Run executes the passed tasks and their dependencies.
func (r *Runner) Run(ctx context.Context, targets ...string) error {
	graph, err := r.Plan(targets...)
	if err != nil {
		return err
	}

	forced := map[string]bool{}
	if r.Force {
		for _, name := range targets {
			forced[name] = true
		}
	}

	return r.Execute(ctx, graph, forced)
}

// Execute runs every task in graph once its dependencies have finished. Tasks listed in forced
// skip the up-to-date checks.
func (r *Runner) Execute(ctx context.Context, graph *Graph, forced map[string]bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &runState{status: map[string]bool{}}
	position := map[string]int{}
	remaining := map[string]int{}
	ready := []string{}
	for idx, name := range graph.Order() {
		position[name] = idx
		remaining[name] = len(graph.Deps(name))
		if remaining[name] == 0 {
			ready = append(ready, name)
		}
	}

	type result struct {
		name string
		err  error
	}
	results := make(chan result)
	running := 0
	var firstErr error

	for {
		for firstErr == nil && running < r.jobs() && len(ready) > 0 {
			name := ready[0]
			ready = ready[1:]
			running++

			go func(name string) {
				results <- result{name: name, err: r.runTask(ctx, state, graph.Task(name), forced[name])}
			}(name)
		}

		if running == 0 {
			break
		}

		res := <-results
		running--

		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				if dependents := graph.Dependents(res.name); len(dependents) > 0 {
					firstErr = eris.Wrapf(res.err, "Task %s failed and blocks %s", res.name, strings.Join(dependents, ", "))
				}
				cancel()
			}
			continue
		}

		for _, dependent := range graph.Dependents(res.name) {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Slice(ready, func(a, b int) bool {
			return position[ready[a]] < position[ready[b]]
		})
	}

	return firstErr
}

func (r *Runner) stepContext(task *Task) *StepContext {
	return &StepContext{
		Task:        task.Short,
		Base:        task.Base,
		ProjectRoot: r.ProjectRoot,
		Env:         task.Env,
		Stdout:      r.stdout(),
		Stderr:      r.stderr(),
	}
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return os.Stderr
	}
	return r.Stderr
}

// resolveAll resolves patterns for task and reports whether every pattern matched something.
func (r *Runner) resolveAll(task *Task, patterns []string) ([]string, bool, error) {
	result := []string{}
	complete := true
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			continue
		}

		matches, err := ResolvePatterns(r.ProjectRoot, task.Base, []string{pattern})
		if err != nil {
			return nil, false, err
		}

		if len(matches) == 0 {
			complete = false
		}
		result = append(result, matches...)
	}

	return result, complete, nil
}

// skipped checks skip_if_exists and the input/output timestamps.
func (r *Runner) skipped(ctx context.Context, task *Task) (bool, error) {
	if len(task.SkipIfExists) > 0 {
		skipList, complete, err := r.resolveAll(task, task.SkipIfExists)
		if err != nil {
			return false, eris.Wrapf(err, "failed to resolve skipIfExists list")
		}

		if complete && len(skipList) > 0 {
			log(ctx).Info().
				Str("task", task.Short).
				Msg("skipped because all skip files exist")

			return true, nil
		}
	}

	var newestInput time.Time
	inputList, err := ResolvePatterns(r.ProjectRoot, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, complete, err := r.resolveAll(task, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	// every declared output has to exist
	if newestInput.IsZero() || !complete || len(outputList) == 0 {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()

	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}

		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		log(ctx).Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if !oldestOutput.After(newestInput) {
		return false, nil
	}

	log(ctx).Info().
		Str("task", task.Short).
		Msgf("nothing to do (output is %f seconds newer)", oldestOutput.Sub(newestInput).Seconds())
	return true, nil
}

func (r *Runner) runTask(ctx context.Context, state *runState, task *Task, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := state.mark(task.Short)
	if err != nil {
		return err
	}
	if done {
		log(ctx).Debug().Msgf("Task %s already run", task.Short)
		return nil
	}

	err = r.runTaskInternal(ctx, state, task, force)
	if err != nil {
		state.reset(task.Short)
		return err
	}

	state.finish(task.Short)
	return nil
}

func (r *Runner) runTaskInternal(ctx context.Context, state *runState, task *Task, force bool) error {
	if !force {
		skip, err := r.skipped(ctx, task)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
	}

	runner, err := newShellRunner(task.Base, getTaskEnv(task), r.stdout(), r.stderr())
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	for _, item := range task.Cmds {
		if step := item.ToStep(); step != nil {
			err = r.runStep(ctx, task, step)
			if err != nil {
				return err
			}
		} else if subTask, err := item.ToTask(); err != nil || subTask != nil {
			if err != nil {
				return eris.Wrap(err, "failed to retrieve task ref")
			}

			// referenced tasks are part of the graph and have finished before this task started
			if !state.done(subTask.Short) {
				return eris.Errorf("Task %s ran before its referenced task %s", task.Short, subTask.Short)
			}
		} else {
			stmts, err := item.ToShellStmts(parser)
			if err != nil {
				return eris.Wrap(err, "failed to parse shell script")
			}

			for _, stm := range stmts {
				log(ctx).Info().
					Str("task", task.Short).
					Bool("command", true).
					Msg(printNode(stm))

				if !r.DryRun {
					err = runner.Run(ctx, stm)
					if err != nil {
						return eris.Wrapf(err, "Task %s failed", task.Short)
					}

					if runner.Exited() {
						return nil
					}
				}
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) runStep(ctx context.Context, task *Task, call *TaskCmdStep) error {
	log(ctx).Info().
		Str("task", task.Short).
		Bool("command", true).
		Msg(call.String())

	if r.DryRun {
		return nil
	}

	fn, ok := r.Steps[call.Step]
	if !ok {
		return eris.Errorf("Task %s uses unknown step %s", task.Short, call.Step)
	}

	err := fn(ctx, r.stepContext(task), call.Args)
	if err != nil {
		return eris.Wrapf(err, "Task %s failed in step %s", task.Short, call.Step)
	}
	return nil
}
