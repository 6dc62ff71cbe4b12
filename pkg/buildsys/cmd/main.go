// Package cmd implements the task command for the buildsys package
package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

// RootCmd runs the tasks passed on the command line or lists the available ones.
var RootCmd = &cobra.Command{
	Use:   "task [name=value...] [tasks...]",
	Short: "Simple build system for Foundation for Apps",
	Long:  `This command parses the first tasks.star file it finds and executes the given tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		watch, err := cmd.Flags().GetBool("watch")
		if err != nil {
			return err
		}

		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return err
		}

		taskArgs, options := SplitArgs(args)

		session, err := Prepare(cmd)
		if err != nil {
			return err
		}
		defer session.Close()

		ctx := session.Context()
		cfg := session.Config
		if jobs, err := cmd.Flags().GetInt("jobs"); err == nil && cmd.Flags().Changed("jobs") {
			cfg.Jobs = jobs
		}

		// the listing needs the option help texts which aren't cached
		project, err := LoadProject(ctx, cfg, options, !noCache && len(taskArgs) > 0)
		if err != nil {
			return err
		}

		if len(taskArgs) == 0 {
			PrintTasks(cmd.OutOrStdout(), project)
			return nil
		}

		runner := project.Runner(cfg)
		runner.DryRun = dryRun
		runner.Force = force

		err = runner.Run(ctx, taskArgs...)
		if !watch {
			return err
		}

		if err != nil {
			session.Logger.Error().Err(err).Msg("Initial build failed")
		}

		watcher := buildsys.Watcher{
			Runner:   runner,
			Debounce: cfg.Watch.Debounce,
			OnRebuild: func(tasks []string, err error) {
				if err != nil {
					session.Logger.Error().Err(err).Msgf("Rebuild of %s failed", strings.Join(tasks, ", "))
				} else {
					session.Logger.Info().Msgf("Rebuilt %s", strings.Join(tasks, ", "))
				}
			},
		}

		return watcher.Watch(ctx, taskArgs...)
	},
}

// SplitArgs separates name=value options from task names.
func SplitArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	return taskArgs, options
}

// PrintTasks writes the visible tasks and the script's options to out.
func PrintTasks(out io.Writer, project *Project) {
	fmt.Fprintln(out, "Available tasks:")
	maxNameLen := 0
	sortedNames := make([]string, 0)
	for name, task := range project.Tasks {
		if task.Hidden {
			continue
		}

		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}

		sortedNames = append(sortedNames, name)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		fmt.Fprintf(out, lineFmt, name+":", project.Tasks[name].Desc)
	}

	if len(project.Options) == 0 {
		return
	}

	fmt.Fprintln(out, "\nOptions:")
	maxNameLen = 0
	sortedNames = sortedNames[:0]
	for name := range project.Options {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
		sortedNames = append(sortedNames, name)
	}

	sort.Strings(sortedNames)

	lineFmt = fmt.Sprintf(" * %%-%ds %%s (default: %%q)\n", maxNameLen+3)
	for _, name := range sortedNames {
		opt := project.Options[name]
		fmt.Fprintf(out, lineFmt, name+":", opt.Help, opt.Default())
	}
}

// AddLoggingFlags registers the flags read by Prepare.
func AddLoggingFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file (default: buildtools.toml)")
	cmd.PersistentFlags().String("log-level", "", "minimum level of logged messages (debug, info, warn or error)")
	cmd.PersistentFlags().Bool("log-json", false, "log JSON lines instead of console messages")
}

func init() {
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RootCmd.Flags().IntP("jobs", "j", 1, "number of tasks to run in parallel")
	RootCmd.Flags().BoolP("watch", "w", false, "keep running and rebuild whenever an input changes")
	RootCmd.Flags().Bool("no-cache", false, "always parse the task script instead of using the cached task list")
}
