package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

var loaders = map[string]api.Loader{
	"js":   api.LoaderJS,
	"css":  api.LoaderCSS,
	"json": api.LoaderJSON,
	"ts":   api.LoaderTS,
}

func loaderFor(name, file string) (api.Loader, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(file), ".")
	}

	loader, ok := loaders[strings.ToLower(name)]
	if !ok {
		return api.LoaderNone, eris.Errorf("can't minify %s: unknown loader %q", file, name)
	}
	return loader, nil
}

// minifyCode runs esbuild's transform API. mangle also shortens local identifiers.
func minifyCode(code []byte, loader api.Loader, mangle bool, file string) ([]byte, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:            loader,
		Sourcefile:        file,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: mangle,
		LegalComments:     api.LegalCommentsInline,
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, msg := range result.Errors {
			if msg.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			} else {
				msgs = append(msgs, msg.Text)
			}
		}
		return nil, eris.Errorf("failed to minify %s:\n%s", file, strings.Join(msgs, "\n"))
	}

	return result.Code, nil
}

// Concat joins the files matched by src (in pattern order) into dest. With minify=True the
// result is minified according to dest's extension.
func Concat(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("src", "dest")
	if err != nil {
		return err
	}

	files, err := sources(sc, args)
	if err != nil {
		return err
	}

	dest := sc.Path(args.Str("dest", ""))
	sep := []byte(args.Str("separator", "\n"))

	var buffer bytes.Buffer
	for idx, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file)
		}

		if idx > 0 {
			buffer.Write(sep)
		}
		buffer.Write(content)
	}

	content := buffer.Bytes()
	if args.Bool("minify", false) {
		loader, err := loaderFor(args.Str("loader", ""), dest)
		if err != nil {
			return err
		}

		content, err = minifyCode(content, loader, args.Bool("mangle", true), sc.Display(dest))
		if err != nil {
			return err
		}
	}

	err = writeFile(dest, content)
	if err != nil {
		return err
	}

	sc.Log(ctx).Info().Msgf("Concatenated %d files into %s", len(files), sc.Display(dest))
	return nil
}

// Minify writes a minified copy of each file matched by src into the dest directory. suffix is
// inserted before the extension (".min" turns app.js into app.min.js).
func Minify(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
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
	suffix := args.Str("suffix", "")

	for _, file := range files {
		if err = ctx.Err(); err != nil {
			return err
		}

		loader, err := loaderFor(args.Str("loader", ""), file)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file)
		}

		content, err = minifyCode(content, loader, args.Bool("mangle", true), sc.Display(file))
		if err != nil {
			return err
		}

		rel := relPath(base, file)
		ext := filepath.Ext(rel)
		target := filepath.Join(dest, rel[:len(rel)-len(ext)]+suffix+ext)

		err = writeFile(target, content)
		if err != nil {
			return err
		}
		sc.Log(ctx).Debug().Msgf("Minified %s", sc.Display(target))
	}

	sc.Log(ctx).Info().Msgf("Minified %d files", len(files))
	return nil
}
