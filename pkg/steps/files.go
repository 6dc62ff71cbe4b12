package steps

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/routes"
)

// Clean removes the passed paths recursively. Missing paths are ignored.
func Clean(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	patterns := args.List("paths")
	if len(patterns) == 0 {
		return eris.New("missing required argument paths")
	}

	paths, err := sc.Resolve(patterns)
	if err != nil {
		return err
	}

	for _, item := range paths {
		if item == sc.ProjectRoot || item == filepath.Dir(item) {
			return eris.Errorf("refusing to delete %s", item)
		}

		sc.Log(ctx).Debug().Msgf("Removing %s", sc.Display(item))
		err = os.RemoveAll(item)
		if err != nil {
			return eris.Wrapf(err, "failed to remove %s", sc.Display(item))
		}
	}

	return nil
}

// Copy copies every file matched by src to dest. The path of each file relative to base (or the
// glob base of the first pattern) is kept.
func Copy(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
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

	bar := getProgressBar(len(files), "Copying")
	defer bar.Finish()

	for _, file := range files {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = routes.CopyFile(file, filepath.Join(dest, relPath(base, file)))
		if err != nil {
			return err
		}
		bar.Add(1)
	}

	sc.Log(ctx).Info().Msgf("Copied %d files to %s", len(files), sc.Display(dest))
	return nil
}
