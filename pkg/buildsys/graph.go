package buildsys

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrUnknownTask is returned when a requested task or dependency doesn't exist.
	ErrUnknownTask = eris.New("task not found")
	// ErrCycle is returned when tasks depend on each other.
	ErrCycle = eris.New("dependency cycle")
	// ErrOutputConflict is returned when unrelated tasks of one run write the same output.
	ErrOutputConflict = eris.New("conflicting outputs")
)

// Graph is the dependency graph of a set of requested tasks and everything they depend on.
type Graph struct {
	tasks      TaskList
	inline     TaskList
	order      []string
	deps       map[string][]string
	dependents map[string][]string
}

// NewGraph resolves targets and their transitive dependencies.
//
// Tasks referenced from another task's commands become nodes of the graph as well. They (and
// everything they depend on) run after the referencing task's dependencies and before its own
// commands.
func NewGraph(tasks TaskList, targets []string) (*Graph, error) {
	g := &Graph{
		tasks:      tasks,
		inline:     TaskList{},
		deps:       map[string][]string{},
		dependents: map[string][]string{},
	}

	const (
		visiting = 1
		visited  = 2
	)
	state := map[string]int{}
	stack := []string{}

	var visit func(name, parent string) error
	visit = func(name, parent string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			start := 0
			for idx, item := range stack {
				if item == name {
					start = idx
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), name)
			return eris.Wrapf(ErrCycle, "%s", strings.Join(cycle, " -> "))
		}

		task := g.Task(name)
		if task == nil {
			if parent == "" {
				return eris.Wrapf(ErrUnknownTask, "%s", name)
			}
			return eris.Wrapf(ErrUnknownTask, "%s (required by %s)", name, parent)
		}

		state[name] = visiting
		stack = append(stack, name)

		seen := map[string]bool{}
		deps := make([]string, 0, len(task.Deps))
		for _, dep := range task.Deps {
			if seen[dep] {
				continue
			}
			seen[dep] = true

			err := visit(dep, name)
			if err != nil {
				return err
			}
			deps = append(deps, dep)
		}

		explicit := append([]string{}, deps...)
		for _, cmd := range task.Cmds {
			ref, ok := cmd.(TaskCmdTaskRef)
			if !ok || ref.Task == nil {
				continue
			}

			refName := ref.Task.Short
			if _, known := tasks[refName]; !known {
				g.inline[refName] = ref.Task
			}

			err := visit(refName, name)
			if err != nil {
				return err
			}

			closure := map[string]bool{refName: true}
			g.ancestors(refName, closure)
			for member := range closure {
				for _, dep := range explicit {
					g.addEdge(member, dep)
				}
			}

			if !seen[refName] {
				seen[refName] = true
				deps = append(deps, refName)
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = visited
		g.deps[name] = deps
		for _, dep := range deps {
			g.dependents[dep] = append(g.dependents[dep], name)
		}
		return nil
	}

	for _, name := range targets {
		err := visit(name, "")
		if err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm; ready tasks are picked alphabetically to keep the order stable.
	remaining := make(map[string]int, len(g.deps))
	ready := []string{}
	for name, deps := range g.deps {
		remaining[name] = len(deps)
		if len(deps) == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		g.order = append(g.order, name)

		for _, dependent := range g.dependents[name] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
	}

	return g, nil
}

// Order returns all tasks of the graph in a valid execution order.
func (g *Graph) Order() []string {
	return append([]string{}, g.order...)
}

// Deps returns the direct dependencies of name.
func (g *Graph) Deps(name string) []string {
	return g.deps[name]
}

// Dependents returns the tasks that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// Task returns the task called name.
func (g *Graph) Task(name string) *Task {
	if task, ok := g.tasks[name]; ok {
		return task
	}
	return g.inline[name]
}

// addEdge makes task depend on dep unless that's already implied or would create a cycle.
func (g *Graph) addEdge(task, dep string) {
	if task == dep {
		return
	}

	reachable := map[string]bool{}
	g.ancestors(task, reachable)
	if reachable[dep] {
		return
	}

	reverse := map[string]bool{}
	g.ancestors(dep, reverse)
	if reverse[task] {
		return
	}

	g.deps[task] = append(g.deps[task], dep)
	g.dependents[dep] = append(g.dependents[dep], task)
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

func (g *Graph) ancestors(name string, result map[string]bool) {
	for _, dep := range g.deps[name] {
		if !result[dep] {
			result[dep] = true
			g.ancestors(dep, result)
		}
	}
}

// CheckOutputs makes sure that no two tasks that might run at the same time declare the same output.
func (g *Graph) CheckOutputs(projectRoot string) error {
	owners := map[string][]string{}
	for _, name := range g.order {
		task := g.Task(name)
		for _, output := range task.Outputs {
			path := joinPath(projectRoot, task.Base, output)
			owners[path] = append(owners[path], name)
		}
	}

	paths := make([]string, 0, len(owners))
	for path := range owners {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		names := owners[path]
		for a := 0; a < len(names); a++ {
			ancestors := map[string]bool{}
			g.ancestors(names[a], ancestors)

			for b := a + 1; b < len(names); b++ {
				if names[a] == names[b] || ancestors[names[b]] {
					continue
				}

				other := map[string]bool{}
				g.ancestors(names[b], other)
				if other[names[a]] {
					continue
				}

				return eris.Wrapf(ErrOutputConflict, "%s and %s both write %s", names[a], names[b], path)
			}
		}
	}

	return nil
}
