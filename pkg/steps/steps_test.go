package steps

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/ulikunitz/xz"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/routes"
)

func newContext(root string) *buildsys.StepContext {
	return &buildsys.StepContext{
		Task:        "test",
		Base:        root,
		ProjectRoot: root,
		Env:         map[string]string{},
		Stdout:      io.Discard,
		Stderr:      io.Discard,
	}
}

func stepArgs(strs map[string]string, lists map[string][]string, bools map[string]bool) buildsys.StepArgs {
	args := buildsys.NewStepArgs()
	for k, v := range strs {
		args.Strings[k] = v
	}
	for k, v := range lists {
		args.Lists[k] = v
	}
	for k, v := range bools {
		args.Bools[k] = v
	}
	return args
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestRegistry(t *testing.T) {
	registry := Registry()
	for _, name := range []string{"clean", "copy", "generate_routes", "concat", "minify", "sass", "html2js", "compress", "archive", "bump", "publish"} {
		require.Contains(t, registry, name)
	}
}

func TestClean(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"build/index.html":          "",
		"build/assets/css/app.css":  "",
		"docs/templates/index.html": "",
	})

	ctx := context.Background()
	err := Clean(ctx, newContext(root), stepArgs(nil, map[string][]string{"paths": {"build", "missing"}}, nil))
	require.NoError(t, err)
	require.NoDirExists(t, filepath.Join(root, "build"))
	require.FileExists(t, filepath.Join(root, "docs", "templates", "index.html"))

	err = Clean(ctx, newContext(root), stepArgs(nil, map[string][]string{"paths": {"//"}}, nil))
	require.Error(t, err)
}

func TestCopy(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"docs/index.html":             "<html></html>",
		"docs/assets/img/logo.svg":    "<svg/>",
		"docs/templates/button.html":  "button",
		"docs/partials/partial.html":  "partial",
		"iconic/sprites/a.svg":        "a",
	})

	err := Copy(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "build"},
		map[string][]string{"src": {"docs/**/*.*", "!docs/templates/**/*.*", "!docs/partials/**/*.*"}},
		nil,
	))
	require.NoError(t, err)

	require.Equal(t, "<html></html>", readFile(t, filepath.Join(root, "build", "index.html")))
	require.Equal(t, "<svg/>", readFile(t, filepath.Join(root, "build", "assets", "img", "logo.svg")))
	require.NoFileExists(t, filepath.Join(root, "build", "templates", "button.html"))
	require.NoFileExists(t, filepath.Join(root, "build", "partials", "partial.html"))

	err = Copy(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "build/assets/img/iconic", "base": "iconic"},
		map[string][]string{"src": {"iconic/**/*"}},
		nil,
	))
	require.NoError(t, err)
	require.Equal(t, "a", readFile(t, filepath.Join(root, "build", "assets", "img", "iconic", "sprites", "a.svg")))
}

func TestCopyOntoItself(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"docs/index.html": "<html></html>"})

	err := Copy(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "docs"},
		map[string][]string{"src": {"docs/*.html"}},
		nil,
	))
	require.True(t, eris.Is(err, routes.ErrSameFile))
	require.Equal(t, "<html></html>", readFile(t, filepath.Join(root, "docs", "index.html")))
}

func TestGenerateRoutes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"docs/templates/index.html":             "home",
		"docs/templates/getting-started.html":   "start",
		"docs/templates/components/button.html": "button",
	})

	err := GenerateRoutes(context.Background(), newContext(root), stepArgs(
		map[string]string{
			"root":   "docs/templates",
			"path":   "build/assets/js/routes.js",
			"dest":   "build/templates",
			"prefix": "templates",
		},
		map[string][]string{"src": {"docs/templates/**/*.html"}},
		nil,
	))
	require.NoError(t, err)

	expected := `var foundationRoutes = {
  "/components/button": "templates/components/button.html",
  "/getting-started": "templates/getting-started.html",
  "/": "templates/index.html"
};
`
	require.Equal(t, expected, readFile(t, filepath.Join(root, "build", "assets", "js", "routes.js")))
	require.Equal(t, "button", readFile(t, filepath.Join(root, "build", "templates", "components", "button.html")))
}

// The table values are loaded relative to the build directory, so each of them has to exist there.
func TestGenerateRoutesTemplatesResolve(t *testing.T) {
	for _, tc := range []struct{ src, root string }{
		{"docs/templates/**/*.html", "docs/templates"},
		{"tests/motion/templates/**/*.html", "tests/motion/templates"},
	} {
		root := t.TempDir()
		writeFiles(t, root, map[string]string{
			tc.root + "/index.html":             "home",
			tc.root + "/components/button.html": "button",
			tc.root + "/motion-ui/index.html":   "motion",
		})

		err := GenerateRoutes(context.Background(), newContext(root), stepArgs(
			map[string]string{
				"root":   tc.root,
				"prefix": "templates",
				"path":   "build/assets/js/routes.js",
				"dest":   "build/templates",
			},
			map[string][]string{"src": {tc.src}},
			nil,
		))
		require.NoError(t, err)

		content := readFile(t, filepath.Join(root, "build", "assets", "js", "routes.js"))
		require.True(t, strings.HasPrefix(content, "var foundationRoutes = "))
		table := gjson.Parse(strings.TrimSuffix(strings.TrimPrefix(content, "var foundationRoutes = "), ";\n"))
		require.Len(t, table.Map(), 3)

		table.ForEach(func(url, template gjson.Result) bool {
			require.FileExists(t, filepath.Join(root, "build", filepath.FromSlash(template.String())), url.String())
			return true
		})
		require.Equal(t, "templates/components/button.html", table.Map()["/components/button"].String())
	}
}

func TestConcat(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"js/b.js":        "var bar = 2;",
		"js/a.js":        "var foo = 1;",
		"vendor/first.js": "var first = 0;",
	})

	ctx := context.Background()
	err := Concat(ctx, newContext(root), stepArgs(
		map[string]string{"dest": "build/app.js"},
		map[string][]string{"src": {"vendor/first.js", "js/*.js"}},
		nil,
	))
	require.NoError(t, err)
	require.Equal(t, "var first = 0;\nvar foo = 1;\nvar bar = 2;", readFile(t, filepath.Join(root, "build", "app.js")))

	err = Concat(ctx, newContext(root), stepArgs(
		map[string]string{"dest": "build/app.min.js"},
		map[string][]string{"src": {"js/*.js"}},
		map[string]bool{"minify": true},
	))
	require.NoError(t, err)

	minified := readFile(t, filepath.Join(root, "build", "app.min.js"))
	require.Contains(t, minified, "foo=1")
	require.NotContains(t, minified, "foo = 1")

	writeFiles(t, root, map[string]string{"broken/x.js": "var = ;"})
	err = Concat(ctx, newContext(root), stepArgs(
		map[string]string{"dest": "build/broken.js"},
		map[string][]string{"src": {"broken/*.js"}},
		map[string]bool{"minify": true},
	))
	require.Error(t, err)
}

func TestMinify(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"build/css/app.css": "a {\n  color: red;\n}\n",
		"build/js/app.js":   "function add(first, second) {\n  return first + second;\n}\n",
		"build/app.txt":     "text",
	})

	err := Minify(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "dist", "suffix": ".min"},
		map[string][]string{"src": {"build/**/*.{css,js}"}},
		nil,
	))
	require.NoError(t, err)

	require.Contains(t, readFile(t, filepath.Join(root, "dist", "css", "app.min.css")), "a{color:red}")
	require.NotContains(t, readFile(t, filepath.Join(root, "dist", "js", "app.min.js")), "first + second")

	err = Minify(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "dist"},
		map[string][]string{"src": {"build/app.txt"}},
		nil,
	))
	require.Error(t, err)
}

func TestSass(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the compiler")
	}

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"scss/app.scss":      "$x: 1;",
		"scss/_settings.scss": "",
		"bin/fake-sass":      "#!/bin/sh\necho \"$2\" > \"$4\"\n",
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "bin", "fake-sass"), 0o755))

	err := Sass(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "build/css", "style": "compressed", "bin": filepath.Join(root, "bin", "fake-sass")},
		map[string][]string{"src": {"scss/*.scss"}},
		nil,
	))
	require.NoError(t, err)

	require.Equal(t, "--style=compressed\n", readFile(t, filepath.Join(root, "build", "css", "app.css")))
	require.NoFileExists(t, filepath.Join(root, "build", "css", "_settings.css"))

	err = Sass(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "build/css", "style": "fancy"},
		map[string][]string{"src": {"scss/*.scss"}},
		nil,
	))
	require.Error(t, err)
}

func TestHTML2JS(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"js/angular/components/accordion/accordion.html": "<div class=\"x\">\n  it's\n</div>\n",
	})

	err := HTML2JS(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "build/assets/js/templates.js", "prefix": "components/", "module": "base"},
		map[string][]string{"src": {"js/angular/components/**/*.html"}},
		map[string]bool{"declare_module": false},
	))
	require.NoError(t, err)

	expected := `angular.module('base').run(['$templateCache', function($templateCache) {
  $templateCache.put('components/accordion/accordion.html',
    '<div class="x">\n' +
    '  it\'s\n' +
    '</div>\n' +
    '');
}]);
`
	require.Equal(t, expected, readFile(t, filepath.Join(root, "build", "assets", "js", "templates.js")))

	err = HTML2JS(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "build/templates.js", "module": "foundation"},
		map[string][]string{"src": {"js/angular/components/**/*.html"}},
		nil,
	))
	require.NoError(t, err)

	content := readFile(t, filepath.Join(root, "build", "templates.js"))
	require.Contains(t, content, "module = angular.module('foundation', []);")
	require.Contains(t, content, "$templateCache.put('accordion/accordion.html',")
}

func TestCompress(t *testing.T) {
	root := t.TempDir()
	original := bytes.Repeat([]byte("foundation "), 100)
	writeFiles(t, root, map[string]string{"dist/app.css": string(original)})

	err := Compress(context.Background(), newContext(root), stepArgs(
		map[string]string{"quality": "5"},
		map[string][]string{"src": {"dist/*.css"}},
		nil,
	))
	require.NoError(t, err)

	handle, err := os.Open(filepath.Join(root, "dist", "app.css.br"))
	require.NoError(t, err)
	defer handle.Close()

	decoded, err := io.ReadAll(brotli.NewReader(handle))
	require.NoError(t, err)
	require.Equal(t, original, decoded)

	err = Compress(context.Background(), newContext(root), stepArgs(
		map[string]string{"quality": "99"},
		map[string][]string{"src": {"dist/*.css"}},
		nil,
	))
	require.Error(t, err)
}

func TestArchive(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"dist/css/foundation-apps.css": "css",
		"dist/js/foundation-apps.js":   "js",
	})

	err := Archive(context.Background(), newContext(root), stepArgs(
		map[string]string{"dest": "release/foundation-apps.tar.xz"},
		map[string][]string{"src": {"dist/**/*"}},
		nil,
	))
	require.NoError(t, err)

	handle, err := os.Open(filepath.Join(root, "release", "foundation-apps.tar.xz"))
	require.NoError(t, err)
	defer handle.Close()

	xzr, err := xz.NewReader(handle)
	require.NoError(t, err)

	archive := tar.NewReader(xzr)
	contents := map[string]string{}
	for {
		header, err := archive.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(archive)
		require.NoError(t, err)
		contents[header.Name] = string(data)
	}

	require.Equal(t, map[string]string{
		"css/foundation-apps.css": "css",
		"js/foundation-apps.js":   "js",
	}, contents)
}
