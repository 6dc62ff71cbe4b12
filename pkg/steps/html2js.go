package steps

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

var jsStringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\r\n", "\\n' +\n    '", "\n", "\\n' +\n    '")

// templateModule renders an AngularJS run block that puts content into $templateCache as url.
// If module is empty, every template gets a module named after its url.
func templateModule(module string, declare bool, url, content string) string {
	escaped := jsStringEscaper.Replace(content)
	put := "  $templateCache.put('" + jsStringEscaper.Replace(url) + "',\n    '" + escaped + "');\n"

	if module != "" && !declare {
		return "angular.module('" + module + "').run(['$templateCache', function($templateCache) {\n" +
			put + "}]);\n"
	}

	if module == "" {
		module = url
	}
	module = jsStringEscaper.Replace(module)

	var sb strings.Builder
	sb.WriteString("(function(module) {\n")
	sb.WriteString("try {\n")
	sb.WriteString("  module = angular.module('" + module + "');\n")
	sb.WriteString("} catch (e) {\n")
	sb.WriteString("  module = angular.module('" + module + "', []);\n")
	sb.WriteString("}\n")
	sb.WriteString("module.run(['$templateCache', function($templateCache) {\n")
	sb.WriteString(put)
	sb.WriteString("}]);\n")
	sb.WriteString("})();\n")
	return sb.String()
}

// HTML2JS turns the HTML partials matched by src into a single script registering them in
// AngularJS' $templateCache. The cache key is prefix + the path relative to base.
func HTML2JS(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("src", "dest")
	if err != nil {
		return err
	}

	files, err := sources(sc, args)
	if err != nil {
		return err
	}

	base := sourceBase(sc, args)
	dest := sc.Path(args.Str("dest", ""))
	prefix := args.Str("prefix", "")
	module := args.Str("module", "")
	declare := args.Bool("declare_module", true)

	parts := make([]string, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file)
		}

		url := path.Join(prefix, filepath.ToSlash(relPath(base, file)))
		parts = append(parts, templateModule(module, declare, url, string(content)))
	}

	output := []byte(strings.Join(parts, "\n"))
	if args.Bool("minify", false) {
		output, err = minifyCode(output, api.LoaderJS, args.Bool("mangle", true), sc.Display(dest))
		if err != nil {
			return err
		}
	}

	err = writeFile(dest, output)
	if err != nil {
		return err
	}

	sc.Log(ctx).Info().Msgf("Wrote %d templates to %s", len(files), sc.Display(dest))
	return nil
}
