package buildsys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcherAffected(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"docs/templates/button.html": "",
		"scss/app.scss":              "",
		"js/app.js":                  "",
	})

	tasks := TaskList{
		"build": {Short: "build", Base: root, Deps: []string{"copy", "sass", "js"}},
		"copy":  {Short: "copy", Base: root, Inputs: []string{"docs/**/*.html"}, Outputs: []string{"build"}},
		"sass":  {Short: "sass", Base: root, Inputs: []string{"scss/**/*.scss"}, Outputs: []string{"build/assets/css/app.css"}},
		"js":    {Short: "js", Base: root, Inputs: []string{"js/app.js"}, Outputs: []string{"build/assets/js/app.js"}},
	}

	w := &Watcher{Runner: &Runner{ProjectRoot: root, Tasks: tasks}}
	graph, err := w.Runner.Plan("build")
	require.NoError(t, err)

	p := func(name string) string {
		return filepath.Join(root, filepath.FromSlash(name))
	}

	affected, err := w.Affected(graph, []string{p("docs/templates/button.html")})
	require.NoError(t, err)
	require.Equal(t, []string{"copy"}, affected)

	affected, err = w.Affected(graph, []string{p("scss/app.scss"), p("js/app.js")})
	require.NoError(t, err)
	require.Equal(t, []string{"js", "sass"}, affected)

	// deleted files still trigger the task that used to read them
	affected, err = w.Affected(graph, []string{p("docs/old.html")})
	require.NoError(t, err)
	require.Equal(t, []string{"copy"}, affected)

	affected, err = w.Affected(graph, []string{p("README.md")})
	require.NoError(t, err)
	require.Empty(t, affected)

	require.Equal(t, []string{p("docs"), p("js"), p("scss")}, w.watchDirs(graph))
}

func TestWatcherInlineRefs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"docs/index.html": ""})

	docs := &Task{Short: "docs", Base: root, Deps: []string{"copy"}}
	tasks := TaskList{
		"build": {Short: "build", Base: root, Deps: []string{"clean"}, Cmds: []TaskCmd{TaskCmdTaskRef{Task: docs}}},
		"clean": {Short: "clean", Base: root},
		"docs":  docs,
		"copy":  {Short: "copy", Base: root, Inputs: []string{"docs/**/*.html"}, Outputs: []string{"build"}},
	}

	w := &Watcher{Runner: &Runner{ProjectRoot: root, Tasks: tasks}}
	graph, err := w.Runner.Plan("build")
	require.NoError(t, err)

	require.Equal(t, []string{filepath.Join(root, "docs")}, w.watchDirs(graph))

	affected, err := w.Affected(graph, []string{filepath.Join(root, "docs", "index.html")})
	require.NoError(t, err)
	require.Equal(t, []string{"copy"}, affected)
}

func TestShouldIgnoreEvent(t *testing.T) {
	require.True(t, shouldIgnoreEvent("/src/.app.scss.swp"))
	require.True(t, shouldIgnoreEvent("/src/app.scss~"))
	require.True(t, shouldIgnoreEvent("/src/#app.scss#"))
	require.True(t, shouldIgnoreEvent("/src/.DS_Store"))
	require.False(t, shouldIgnoreEvent("/src/app.scss"))
}
