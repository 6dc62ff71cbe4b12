package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/config"
	"github.com/zurb/foundation-apps/build-tools/pkg/steps"
)

// FindScript searches start and its parents for a file called name.
func FindScript(start, name string) (string, error) {
	path, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		taskPath := filepath.Join(path, name)
		_, err := os.Stat(taskPath)
		if err == nil {
			return taskPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "Failed to check %s", taskPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.Errorf("No %s file found", name)
		}

		path = parent
	}
}

// Project is a parsed task script.
type Project struct {
	Root    string
	Script  string
	Tasks   buildsys.TaskList
	Options map[string]buildsys.ScriptOption
}

// LoadProject finds the task script, parses it with options and returns its tasks. If useCache
// is set, a previously parsed task list is reused as long as the script and options are unchanged.
func LoadProject(ctx context.Context, cfg *config.Config, options map[string]string, useCache bool) (*Project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	script, err := FindScript(wd, cfg.Script)
	if err != nil {
		return nil, err
	}

	project := &Project{
		Root:   filepath.Dir(script),
		Script: script,
	}

	registry := steps.Registry()
	cacheFile := ""
	if useCache && cfg.Cache != "" {
		cacheFile = filepath.Join(project.Root, cfg.Cache)

		tasks, err := buildsys.ReadCache(cacheFile, script, options)
		if err == nil {
			// options are only needed for the task listing which doesn't have to be fast
			project.Tasks = tasks
			return project, nil
		}

		if !eris.Is(err, os.ErrNotExist) && !eris.Is(err, buildsys.ErrStaleCache) {
			buildsys.Log(ctx).Warn().Err(err).Msg("Ignoring unreadable task cache")
		}
	}

	project.Tasks, project.Options, err = buildsys.Parse(ctx, buildsys.ScriptConfig{
		Filename:    script,
		ProjectRoot: project.Root,
		Options:     options,
		Steps:       registry,
		Configure:   true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "Failed to parse tasks")
	}

	if cacheFile != "" {
		err = buildsys.WriteCache(cacheFile, script, options, project.Tasks)
		if err != nil {
			buildsys.Log(ctx).Warn().Err(err).Msg("Failed to write task cache")
		}
	}

	return project, nil
}

// Runner returns a runner for the project's tasks.
func (p *Project) Runner(cfg *config.Config) *buildsys.Runner {
	return &buildsys.Runner{
		ProjectRoot: p.Root,
		Tasks:       p.Tasks,
		Steps:       steps.Registry(),
		Jobs:        cfg.Jobs,
	}
}
