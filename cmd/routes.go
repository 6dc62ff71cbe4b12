package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys/cmd"
	"github.com/zurb/foundation-apps/build-tools/pkg/routes"
)

var routesCmd = &cobra.Command{
	Use:   "routes --root <dir> --path <file> [patterns...]",
	Short: "Generates the route table for a set of templates",
	Long: `Maps every template matching the passed patterns to a URL, writes the route table to --path
and copies the templates to --dest. Without patterns, all files below --root with one of the
--ext extensions are used.`,
	RunE: func(c *cobra.Command, args []string) error {
		session, err := cmd.Prepare(c)
		if err != nil {
			return err
		}
		defer session.Close()

		var opts routes.Options
		flags := c.Flags()
		for name, dest := range map[string]*string{
			"root":   &opts.Root,
			"path":   &opts.Path,
			"dest":   &opts.Dest,
			"prefix": &opts.Prefix,
			"var":    &opts.Var,
			"format": &opts.Format,
		} {
			*dest, err = flags.GetString(name)
			if err != nil {
				return err
			}
		}

		if opts.Root == "" || opts.Path == "" {
			return eris.New("--root and --path are required")
		}

		exts, err := flags.GetStringSlice("ext")
		if err != nil {
			return err
		}

		entries := routes.Walk(opts.Root, exts...)
		if len(args) > 0 {
			wd, err := os.Getwd()
			if err != nil {
				return eris.Wrap(err, "Failed to retrieve the current working directory")
			}

			paths, err := buildsys.ResolvePatterns(wd, wd, args)
			if err != nil {
				return err
			}

			entries = routes.FromPaths(paths)
		}

		table, err := routes.Generate(session.Context(), opts, entries)
		if err != nil {
			return eris.Wrap(err, "Failed to generate routes")
		}

		session.Logger.Info().Str("path", opts.Path).Msgf("Wrote %d routes to %s", table.Len(), opts.Path)
		return nil
	},
}

func init() {
	routesCmd.Flags().String("root", "", "directory the URLs are computed from")
	routesCmd.Flags().String("path", "", "location of the generated route table")
	routesCmd.Flags().String("dest", "", "directory that receives copies of the templates")
	routesCmd.Flags().String("prefix", "", "prefix for the template paths stored in the table")
	routesCmd.Flags().String("var", routes.DefaultVar, "name of the exported variable")
	routesCmd.Flags().String("format", routes.FormatVar, "output format (var, esm or json)")
	routesCmd.Flags().StringSlice("ext", []string{".html"}, "template extensions used when no patterns are passed")

	rootCmd.AddCommand(routesCmd)
}
