package steps

import (
	"context"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/routes"
)

// GenerateRoutes builds the client-side route table from the templates matched by src.
func GenerateRoutes(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("src", "root", "path")
	if err != nil {
		return err
	}

	files, err := sources(sc, args)
	if err != nil {
		return err
	}

	opts := routes.Options{
		Path:   sc.Path(args.Str("path", "")),
		Root:   sc.Path(args.Str("root", "")),
		Prefix: args.Str("prefix", ""),
		Var:    args.Str("var", ""),
		Format: args.Str("format", ""),
	}
	if args.Has("dest") {
		opts.Dest = sc.Path(args.Str("dest", ""))
	}

	table, err := routes.Generate(ctx, opts, routes.FromPaths(files))
	if err != nil {
		return err
	}

	sc.Log(ctx).Info().Msgf("Wrote %d routes to %s", table.Len(), sc.Display(opts.Path))
	return nil
}
