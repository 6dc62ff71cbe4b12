// Package steps contains the native build steps that task scripts can call next to plain shell
// commands.
package steps

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

// Registry returns every step implemented by this package keyed by the name used in task scripts.
func Registry() buildsys.StepRegistry {
	return buildsys.StepRegistry{
		"clean":           Clean,
		"copy":            Copy,
		"generate_routes": GenerateRoutes,
		"concat":          Concat,
		"minify":          Minify,
		"sass":            Sass,
		"html2js":         HTML2JS,
		"compress":        Compress,
		"archive":         Archive,
		"bump":            Bump,
		"publish":         Publish,
	}
}

// sources resolves the src argument and fails if it was omitted.
func sources(sc *buildsys.StepContext, args buildsys.StepArgs) ([]string, error) {
	patterns := args.List("src")
	if len(patterns) == 0 {
		return nil, eris.New("missing required argument src")
	}

	files, err := sc.Resolve(patterns)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(files))
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to check %s", file)
		}
		if !info.IsDir() {
			result = append(result, file)
		}
	}
	return result, nil
}

// sourceBase returns the directory that relative output paths are computed from. It's either
// the explicit base argument or the glob base of the first src pattern.
func sourceBase(sc *buildsys.StepContext, args buildsys.StepArgs) string {
	if base := args.Str("base", ""); base != "" {
		return sc.Path(base)
	}

	for _, pattern := range args.List("src") {
		if !strings.HasPrefix(pattern, "!") {
			return sc.Path(buildsys.GlobBase(pattern))
		}
	}
	return sc.Base
}

// relPath returns file relative to base. Files outside of base are reduced to their name.
func relPath(base, file string) string {
	rel, err := filepath.Rel(base, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(file)
	}
	return rel
}

func writeFile(dest string, content []byte) error {
	err := os.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	return eris.Wrapf(os.WriteFile(dest, content, 0o644), "failed to write %s", dest)
}

func getProgressBar(length int, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" || length < 100 {
		return progressbar.NewOptions(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			os.Stderr.WriteString("\n")
		}),
	)
}
