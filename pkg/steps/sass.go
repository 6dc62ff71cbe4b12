package steps

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

var sassStyles = map[string]string{
	"nested":     "expanded",
	"expanded":   "expanded",
	"compact":    "expanded",
	"compressed": "compressed",
}

// Sass compiles each stylesheet matched by src (partials starting with _ are skipped) into the
// dest directory with the dart-sass CLI. If autoprefix lists browsers, postcss with autoprefixer
// runs on the result.
func Sass(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("src", "dest")
	if err != nil {
		return err
	}

	files, err := sources(sc, args)
	if err != nil {
		return err
	}

	style, ok := sassStyles[args.Str("style", "nested")]
	if !ok {
		return eris.Errorf("unknown output style %s", args.Str("style", ""))
	}

	base := sourceBase(sc, args)
	dest := sc.Path(args.Str("dest", ""))
	compiler := args.Str("bin", "sass")
	browsers := args.List("autoprefix")

	compiled := 0
	for _, file := range files {
		if strings.HasPrefix(filepath.Base(file), "_") {
			continue
		}

		rel := relPath(base, file)
		target := filepath.Join(dest, strings.TrimSuffix(rel, filepath.Ext(rel))+".css")
		err = os.MkdirAll(filepath.Dir(target), 0o755)
		if err != nil {
			return eris.Wrapf(err, "failed to create directory for %s", target)
		}

		cmd := []string{compiler, "--no-source-map", "--style=" + style}
		for _, path := range args.List("load_paths") {
			cmd = append(cmd, "--load-path="+sc.Path(path))
		}
		cmd = append(cmd, file, target)

		err = sc.Exec(ctx, cmd...)
		if err != nil {
			return eris.Wrapf(err, "failed to compile %s", sc.Display(file))
		}

		if len(browsers) > 0 {
			err = autoprefix(ctx, sc, args.Str("postcss_bin", "postcss"), target, browsers)
			if err != nil {
				return err
			}
		}
		compiled++
	}

	if compiled == 0 {
		sc.Log(ctx).Warn().Msg("no stylesheets matched")
	}
	return nil
}

func autoprefix(ctx context.Context, sc *buildsys.StepContext, postcss, file string, browsers []string) error {
	env := make(map[string]string, len(sc.Env)+1)
	for k, v := range sc.Env {
		env[k] = v
	}
	env["BROWSERSLIST"] = strings.Join(browsers, ", ")

	prefixer := *sc
	prefixer.Env = env

	err := prefixer.Exec(ctx, postcss, file, "--use", "autoprefixer", "--no-map", "--replace")
	return eris.Wrapf(err, "failed to autoprefix %s", sc.Display(file))
}
