package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
)

// DefaultDebounce is the time the watcher waits for more changes before it starts a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// Watcher re-runs tasks whenever one of their inputs changes.
type Watcher struct {
	Runner   *Runner
	Debounce time.Duration
	// OnRebuild is called after each rebuild with the tasks that ran and the result.
	OnRebuild func(tasks []string, err error)
}

// Watch blocks until ctx is cancelled. The inputs of every task in the plan for targets are
// watched; a change re-runs the tasks whose inputs include the changed file.
func (w *Watcher) Watch(ctx context.Context, targets ...string) error {
	graph, err := w.Runner.Plan(targets...)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "failed to initialize file watcher")
	}
	defer watcher.Close()

	dirs := w.watchDirs(graph)
	for _, dir := range dirs {
		addDirsRecursive(ctx, watcher, dir)
	}
	log(ctx).Info().Msgf("Watching %d directories for changes", len(dirs))

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var lock sync.Mutex
	changed := map[string]bool{}
	rebuildReq := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		lock.Lock()
		if timer != nil {
			timer.Stop()
		}
		lock.Unlock()
	}()

	trigger := func(path string) {
		lock.Lock()
		defer lock.Unlock()

		changed[path] = true
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case rebuildReq <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if shouldIgnoreEvent(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addDirsRecursive(ctx, watcher, ev.Name)
				}
			}

			log(ctx).Debug().Str("path", ev.Name).Msgf("%s %s", ev.Op.String(), ev.Name)
			trigger(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log(ctx).Warn().Err(err).Msg("watcher error")
		case <-rebuildReq:
			lock.Lock()
			paths := make([]string, 0, len(changed))
			for path := range changed {
				paths = append(paths, path)
			}
			changed = map[string]bool{}
			lock.Unlock()

			w.rebuild(ctx, graph, paths)
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context, graph *Graph, paths []string) {
	affected, err := w.Affected(graph, paths)
	if err != nil {
		log(ctx).Error().Err(err).Msg("failed to check changed files")
		return
	}

	if len(affected) == 0 {
		return
	}

	log(ctx).Info().Msgf("Change detected; running %s", strings.Join(affected, ", "))
	err = w.Runner.Run(ctx, affected...)
	if err != nil {
		log(ctx).Error().Err(err).Msg("rebuild failed")
	} else {
		log(ctx).Info().Msg("rebuild finished")
	}

	if w.OnRebuild != nil {
		w.OnRebuild(affected, err)
	}
}

// Affected returns the tasks in graph whose inputs contain one of the passed paths.
func (w *Watcher) Affected(graph *Graph, paths []string) ([]string, error) {
	changed := make(map[string]bool, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		changed[abs] = true
	}

	result := []string{}
	for _, name := range graph.Order() {
		task := graph.Task(name)
		if len(task.Inputs) == 0 {
			continue
		}

		// anonymous tasks can't be requested by name
		if _, ok := w.Runner.Tasks[name]; !ok {
			continue
		}

		// Deleted files no longer show up in the glob results so compare against the patterns'
		// base directories as well.
		match := false
		for _, pattern := range task.Inputs {
			if strings.HasPrefix(pattern, "!") {
				continue
			}

			base := joinPath(w.Runner.ProjectRoot, task.Base, GlobBase(pattern))
			if !strings.ContainsAny(pattern, "*?[{") {
				base = joinPath(w.Runner.ProjectRoot, task.Base, pattern)
			}

			for path := range changed {
				if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
					if _, err := os.Stat(path); err != nil {
						match = true
					}
				}
			}
		}

		if !match {
			inputs, err := ResolvePatterns(w.Runner.ProjectRoot, task.Base, task.Inputs)
			if err != nil {
				return nil, err
			}

			for _, input := range inputs {
				abs, err := filepath.Abs(input)
				if err == nil && changed[abs] {
					match = true
					break
				}
			}
		}

		if match {
			result = append(result, name)
		}
	}

	return result, nil
}

func (w *Watcher) watchDirs(graph *Graph) []string {
	seen := map[string]bool{}
	for _, name := range graph.Order() {
		task := graph.Task(name)
		for _, pattern := range task.Inputs {
			if strings.HasPrefix(pattern, "!") {
				continue
			}

			dir := joinPath(w.Runner.ProjectRoot, task.Base, GlobBase(pattern))
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				dir = filepath.Dir(dir)
			}
			seen[dir] = true
		}
	}

	// drop directories that are already covered by a parent
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	result := []string{}
	for _, dir := range dirs {
		if len(result) > 0 {
			last := result[len(result)-1]
			if dir == last || strings.HasPrefix(dir, last+string(filepath.Separator)) {
				continue
			}
		}
		result = append(result, dir)
	}
	return result
}

func addDirsRecursive(ctx context.Context, w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			if err := w.Add(path); err != nil {
				log(ctx).Warn().Err(err).Str("path", path).Msg("failed to watch directory")
			}
		}
		return nil
	})
}

// shouldIgnoreEvent filters editor swap files and other noise.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}

	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db"
}
