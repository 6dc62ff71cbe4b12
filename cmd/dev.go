package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys/cmd"
)

var devCmd = &cobra.Command{
	Use:   "dev [name=value...] [tasks...]",
	Short: "Builds the docs, serves them and rebuilds on changes",
	Long: `Runs the passed tasks (build by default), starts the dev server on the build directory
and watches the task inputs for changes.`,
	RunE: func(c *cobra.Command, args []string) error {
		taskArgs, options := cmd.SplitArgs(args)
		if len(taskArgs) == 0 {
			taskArgs = []string{"build"}
		}

		session, err := cmd.Prepare(c)
		if err != nil {
			return err
		}
		defer session.Close()

		applyServerFlags(c, session.Config)
		ctx := session.Context()
		logger := session.Logger

		project, err := cmd.LoadProject(ctx, session.Config, options, true)
		if err != nil {
			return err
		}

		runner := project.Runner(session.Config)
		err = runner.Run(ctx, taskArgs...)
		if err != nil {
			// keep going; the watcher rebuilds once the error is fixed
			logger.Error().Err(err).Msg("Initial build failed")
		}

		server, err := newServer(session, project.Root)
		if err != nil {
			return err
		}

		watcher := buildsys.Watcher{
			Runner:   runner,
			Debounce: session.Config.Watch.Debounce,
			OnRebuild: func(tasks []string, err error) {
				if err != nil {
					logger.Error().Err(err).Msgf("Rebuild of %s failed", strings.Join(tasks, ", "))
				} else {
					logger.Info().Msgf("Rebuilt %s", strings.Join(tasks, ", "))
				}
			},
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return server.ListenAndServe(groupCtx)
		})
		group.Go(func() error {
			return watcher.Watch(groupCtx, taskArgs...)
		})

		return group.Wait()
	},
}

func init() {
	addServerFlags(devCmd)
	rootCmd.AddCommand(devCmd)
}
