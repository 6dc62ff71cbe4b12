package buildsys

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
)

func makeTasks(deps map[string][]string) TaskList {
	list := TaskList{}
	for name, taskDeps := range deps {
		list[name] = &Task{Short: name, Base: ".", Deps: taskDeps}
	}
	return list
}

func TestGraphOrder(t *testing.T) {
	tasks := makeTasks(map[string][]string{
		"build":  {"sass", "copy", "js"},
		"sass":   {"clean"},
		"copy":   {"clean"},
		"js":     {"clean", "copy"},
		"clean":  nil,
		"unused": nil,
	})

	graph, err := NewGraph(tasks, []string{"build"})
	require.NoError(t, err)

	require.Equal(t, []string{"clean", "copy", "js", "sass", "build"}, graph.Order())
	require.Equal(t, 5, graph.Len())
	require.Nil(t, graph.Task("unused"))
	require.ElementsMatch(t, []string{"sass", "copy", "js"}, graph.Dependents("clean"))
	require.Equal(t, []string{"sass", "copy", "js"}, graph.Deps("build"))
}

func TestGraphDuplicateDeps(t *testing.T) {
	tasks := makeTasks(map[string][]string{
		"a": {"b", "b"},
		"b": nil,
	})

	graph, err := NewGraph(tasks, []string{"a", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, graph.Order())
	require.Equal(t, []string{"b"}, graph.Deps("a"))
}

func TestGraphCycle(t *testing.T) {
	tasks := makeTasks(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})

	_, err := NewGraph(tasks, []string{"a"})
	require.Error(t, err)
	require.True(t, eris.Is(err, ErrCycle))
	require.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestGraphUnknownTask(t *testing.T) {
	tasks := makeTasks(map[string][]string{
		"a": {"missing"},
	})

	_, err := NewGraph(tasks, []string{"a"})
	require.Error(t, err)
	require.True(t, eris.Is(err, ErrUnknownTask))
	require.Contains(t, err.Error(), "required by a")

	_, err = NewGraph(tasks, []string{"nope"})
	require.True(t, eris.Is(err, ErrUnknownTask))
}

func TestCheckOutputs(t *testing.T) {
	root := t.TempDir()

	tasks := makeTasks(map[string][]string{
		"all":   {"one", "two"},
		"one":   nil,
		"two":   nil,
		"three": {"one"},
	})
	tasks["one"].Outputs = []string{"build/app.js"}
	tasks["two"].Outputs = []string{"//build/app.js"}
	tasks["three"].Outputs = []string{"build/app.js"}
	for _, task := range tasks {
		task.Base = root
	}

	graph, err := NewGraph(tasks, []string{"all"})
	require.NoError(t, err)

	err = graph.CheckOutputs(root)
	require.Error(t, err)
	require.True(t, eris.Is(err, ErrOutputConflict))

	// three runs after one so they can't collide
	graph, err = NewGraph(tasks, []string{"three"})
	require.NoError(t, err)
	require.NoError(t, graph.CheckOutputs(root))
}

func TestGraphInlineRefs(t *testing.T) {
	tasks := makeTasks(map[string][]string{
		"clean": nil,
		"css":   {"sass"},
		"sass":  nil,
	})
	docs := &Task{Short: "docs", Base: ".", Deps: []string{"css"}}
	anonymous := &Task{Short: "auto#1", Base: ".", Hidden: true}
	tasks["docs"] = docs
	tasks["build"] = &Task{
		Short: "build",
		Base:  ".",
		Deps:  []string{"clean"},
		Cmds:  []TaskCmd{TaskCmdTaskRef{Task: docs}, TaskCmdTaskRef{Task: anonymous}},
	}

	graph, err := NewGraph(tasks, []string{"build"})
	require.NoError(t, err)

	// everything the referenced tasks need runs after clean
	require.Equal(t, []string{"clean", "auto#1", "sass", "css", "docs", "build"}, graph.Order())
	require.Same(t, anonymous, graph.Task("auto#1"))
	require.ElementsMatch(t, []string{"clean", "docs", "auto#1"}, graph.Deps("build"))
}
