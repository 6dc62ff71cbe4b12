package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTool(t *testing.T, args ...string) error {
	t.Helper()

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestMkdirAndRm(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "build", "assets", "js")

	assert.Error(t, runTool(t, "mkdir", "--parents=false", nested))
	require.NoError(t, runTool(t, "mkdir", "-p", nested))
	assert.DirExists(t, nested)

	build := filepath.Join(root, "build")
	assert.Error(t, runTool(t, "rm", "--recursive=false", "--force=false", build))
	assert.DirExists(t, build)

	require.NoError(t, runTool(t, "rm", "-r", "-f", build, filepath.Join(root, "missing")))
	assert.NoDirExists(t, build)

	assert.Error(t, runTool(t, "rm", "--recursive=false", "--force=false", filepath.Join(root, "missing")))
}

func TestMv(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "app.js")
	require.NoError(t, os.WriteFile(src, []byte("app"), 0o644))

	// rename
	renamed := filepath.Join(root, "foundation.js")
	require.NoError(t, runTool(t, "mv", src, renamed))
	assert.NoFileExists(t, src)
	assert.FileExists(t, renamed)

	// move into a directory
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.Mkdir(dist, 0o755))
	require.NoError(t, runTool(t, "mv", renamed, dist))
	assert.FileExists(t, filepath.Join(dist, "foundation.js"))

	// multiple sources need a directory
	a := filepath.Join(root, "a.js")
	b := filepath.Join(root, "b.js")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))
	assert.Error(t, runTool(t, "mv", a, b, filepath.Join(root, "c.js")))
	require.NoError(t, runTool(t, "mv", a, b, dist))
	assert.FileExists(t, filepath.Join(dist, "a.js"))
	assert.FileExists(t, filepath.Join(dist, "b.js"))
}

func TestRoutesCommand(t *testing.T) {
	root := t.TempDir()
	templates := filepath.Join(root, "docs", "templates")
	require.NoError(t, os.MkdirAll(filepath.Join(templates, "components"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(templates, "index.html"), []byte("<h1>Home</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(templates, "components", "button.html"), []byte("<button/>"), 0o644))

	table := filepath.Join(root, "build", "assets", "js", "routes.json")
	dest := filepath.Join(root, "build", "templates")

	err := runTool(t, "routes", "--root", templates, "--path", table, "--dest", dest, "--prefix", "templates",
		"--format", "json", "--var", "foundationRoutes", templates+"/**/*.html")
	require.NoError(t, err)

	content, err := os.ReadFile(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{"/": "templates/index.html", "/components/button": "templates/components/button.html"}`,
		string(content))

	copied, err := os.ReadFile(filepath.Join(dest, "components", "button.html"))
	require.NoError(t, err)
	assert.Equal(t, "<button/>", string(copied))

	assert.Error(t, runTool(t, "routes", "--root", "", "--path", table))
}

func TestRoutesCommandWalksTemplates(t *testing.T) {
	root := t.TempDir()
	templates := filepath.Join(root, "templates")
	require.NoError(t, os.MkdirAll(filepath.Join(templates, "notes"), 0o755))
	for name, content := range map[string]string{
		"index.html":       "<h1>Home</h1>",
		"notes/todo.txt":   "remember",
		".DS_Store":        "junk",
		"notes/index.html": "<h1>Notes</h1>",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(templates, filepath.FromSlash(name)), []byte(content), 0o644))
	}

	table := filepath.Join(root, "build", "routes.json")
	dest := filepath.Join(root, "build", "templates")

	err := runTool(t, "routes", "--root", templates, "--path", table, "--dest", dest, "--prefix", "templates",
		"--format", "json", "--var", "foundationRoutes")
	require.NoError(t, err)

	content, err := os.ReadFile(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{"/": "templates/index.html", "/notes": "templates/notes/index.html"}`, string(content))
	assert.NoFileExists(t, filepath.Join(dest, "notes", "todo.txt"))
	assert.NoFileExists(t, filepath.Join(dest, ".DS_Store"))

	assert.Error(t, runTool(t, "routes", "--root", templates, "--path", table, "--dest", dest, "--prefix", "templates",
		"--format", "var", "--var", "foundation-routes"))
}
