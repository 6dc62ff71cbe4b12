package routes

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestURLPath(t *testing.T) {
	cases := map[string]string{
		"getting-started/index.html": "/getting-started",
		"components/button.html":     "/components/button",
		"index.html":                 "/",
		"a/b/c.html":                 "/a/b/c",
		"a/b/index.htm":              "/a/b",
		"reindex.html":               "/reindex",
		"index.min.html":             "/index.min",
		filepath.Join("x", "y.html"): "/x/y",
	}

	for input, expected := range cases {
		require.Equal(t, expected, URLPath(input), input)
	}
}

func TestGenerate_DocsExample(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	writeFiles(t, docs, map[string]string{
		"index.html":                 "<h1>home</h1>",
		"getting-started/index.html": "<h1>start</h1>",
		"components/button.html":     "<button>",
	})

	out := filepath.Join(dir, "build", "assets", "js", "routes.js")
	dest := filepath.Join(dir, "build", "templates")

	table, err := Generate(context.Background(), Options{
		Path:   out,
		Root:   docs,
		Dest:   dest,
		Prefix: "templates",
	}, Walk(docs, ".html"))
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	tpl, ok := table.Lookup("/getting-started")
	require.True(t, ok)
	require.Equal(t, "templates/getting-started/index.html", tpl)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, `var foundationRoutes = {
  "/components/button": "templates/components/button.html",
  "/getting-started": "templates/getting-started/index.html",
  "/": "templates/index.html"
};
`, string(content))

	copied, err := os.ReadFile(filepath.Join(dest, "components", "button.html"))
	require.NoError(t, err)
	require.Equal(t, "<button>", string(copied))
}

func TestGenerate_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "routes.js")

	table, err := Generate(context.Background(), Options{Path: out, Root: dir}, FromPaths(nil))
	require.NoError(t, err)
	require.Equal(t, 0, table.Len())

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "var foundationRoutes = {};\n", string(content))
}

func TestGenerate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "tpl")
	writeFiles(t, root, map[string]string{
		"index.html":      "a",
		"b/index.html":    "b",
		"b/c.html":        "c",
		"d/e/f/page.html": "f",
	})

	out := filepath.Join(dir, "out", "routes.js")
	opts := Options{Path: out, Root: root, Dest: filepath.Join(dir, "copy")}

	_, err := Generate(context.Background(), opts, Walk(root))
	require.NoError(t, err)
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = Generate(context.Background(), opts, Walk(root))
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestGenerate_CopiesAreByteIdentical(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "tpl")
	files := map[string]string{
		"index.html":        "<p>\r\n\tcrlf & tabs\x00</p>",
		"nested/deep.html":  "{{ angular }}",
		"nested/other.html": "",
	}
	writeFiles(t, root, files)

	dest := filepath.Join(dir, "dest")
	_, err := Generate(context.Background(), Options{
		Path: filepath.Join(dir, "routes.js"),
		Root: root,
		Dest: dest,
	}, Walk(root))
	require.NoError(t, err)

	for name, content := range files {
		copied, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		require.Equal(t, content, string(copied), name)
	}
}

func TestGenerate_DuplicateRoute(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"about.html":       "1",
		"about/index.html": "2",
	})

	out := filepath.Join(dir, "routes.js")
	_, err := Generate(context.Background(), Options{Path: out, Root: dir}, FromPaths([]string{
		filepath.Join(dir, "about.html"),
		filepath.Join(dir, "about", "index.html"),
	}))
	require.Error(t, err)
	require.True(t, eris.Is(err, ErrDuplicateRoute))

	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}

func TestGenerate_MissingRoot(t *testing.T) {
	dir := t.TempDir()

	_, err := Generate(context.Background(), Options{
		Path: filepath.Join(dir, "routes.js"),
		Root: filepath.Join(dir, "missing"),
	}, FromPaths(nil))
	require.Error(t, err)
}

func TestGenerate_EntryOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"root/index.html": "in",
		"outside.html":    "out",
	})

	_, err := Generate(context.Background(), Options{
		Path: filepath.Join(dir, "routes.js"),
		Root: filepath.Join(dir, "root"),
	}, FromPaths([]string{filepath.Join(dir, "outside.html")}))
	require.Error(t, err)
}

func TestGenerate_UncreatableOutputDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"blocker": "file"})

	_, err := Generate(context.Background(), Options{
		Path: filepath.Join(dir, "blocker", "routes.js"),
		Root: dir,
	}, FromPaths(nil))
	require.Error(t, err)
}

func TestGenerate_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"index.html": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Generate(ctx, Options{Path: filepath.Join(dir, "routes.js"), Root: dir}, Walk(dir, ".html"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWalk_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.html": "",
		"b.txt":  "",
		"c.HTML": "",
	})

	var names []string
	for entry, err := range Walk(dir, ".html") {
		require.NoError(t, err)
		names = append(names, filepath.Base(entry.Path))
	}

	require.Equal(t, []string{"a.html", "c.HTML"}, names)
}

func TestWalk_MissingRoot(t *testing.T) {
	var errs []error
	for _, err := range Walk(filepath.Join(t.TempDir(), "nope")) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	require.Error(t, errs[0])
}

func TestGenerate_DestIsRoot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tpl/index.html": "<h1>home</h1>"})
	root := filepath.Join(dir, "tpl")

	_, err := Generate(context.Background(), Options{
		Path: filepath.Join(dir, "routes.js"),
		Root: root,
		Dest: root + string(filepath.Separator) + ".",
	}, Walk(root, ".html"))
	require.Error(t, err)

	content, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	require.Equal(t, "<h1>home</h1>", string(content))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.html": "content"})
	src := filepath.Join(dir, "a.html")

	err := CopyFile(src, src)
	require.True(t, eris.Is(err, ErrSameFile))

	// a second name for the same file
	link := filepath.Join(dir, "link.html")
	if os.Link(src, link) == nil {
		require.True(t, eris.Is(CopyFile(src, link), ErrSameFile))
	}

	content, err := os.ReadFile(src)
	require.NoError(t, err)
	require.Equal(t, "content", string(content))

	require.NoError(t, CopyFile(src, filepath.Join(dir, "nested", "b.html")))
	copied, err := os.ReadFile(filepath.Join(dir, "nested", "b.html"))
	require.NoError(t, err)
	require.Equal(t, "content", string(copied))
}

func TestGenerate_InvalidVar(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tpl/index.html": "x"})
	out := filepath.Join(dir, "routes.js")

	_, err := Generate(context.Background(), Options{
		Path: out,
		Root: filepath.Join(dir, "tpl"),
		Dest: filepath.Join(dir, "copy"),
		Var:  "x; alert(1)",
	}, Walk(filepath.Join(dir, "tpl"), ".html"))
	require.Error(t, err)
	require.NoFileExists(t, out)
	require.NoDirExists(t, filepath.Join(dir, "copy"))
}
