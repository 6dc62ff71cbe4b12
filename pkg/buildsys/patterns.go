package buildsys

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// the file disappeared while we were looking at it
			continue
		}
		result = append(result, info)
	}
	return result, nil
}

func expandPattern(parser *syntax.Parser, cfg *expand.Config, pattern string) ([]string, error) {
	words := make([]*syntax.Word, 0)
	err := parser.Words(strings.NewReader(pattern), func(w *syntax.Word) bool {
		words = append(words, w)
		return true
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse pattern %s", pattern)
	}

	matches, err := expand.Fields(cfg, words...)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve pattern %s", pattern)
	}

	result := make([]string, 0, len(matches))
	for _, match := range matches {
		// A pattern without matches is returned unchanged and literal paths are returned even if
		// they're missing. Only keep what exists.
		if _, err := os.Lstat(match); err != nil {
			continue
		}

		result = append(result, filepath.FromSlash(match))
	}

	// globstar results are depth-first; sort them so that the order doesn't depend on nesting
	sort.Strings(result)
	return result, nil
}

// globChars marks path segments that are left to the shell's pattern matching.
const globChars = "*?[]{}"

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quotePattern joins pattern with the directory it's relative to and turns the result into a
// single shell word. The directory and all segments without glob characters are quoted so
// that spaces and brackets in them are taken literally.
func quotePattern(projectRoot, base, pattern string) string {
	anchor := ""
	switch {
	case strings.HasPrefix(pattern, "//"):
		anchor = filepath.Clean(projectRoot)
	case !strings.HasPrefix(pattern, "/") && !filepath.IsAbs(pattern):
		anchor = filepath.Clean(base)
	}

	joined := filepath.ToSlash(joinPath(projectRoot, base, pattern))
	anchor = strings.TrimSuffix(filepath.ToSlash(anchor), "/")

	prefix := ""
	rest := joined
	switch {
	case anchor != "" && joined == anchor:
		return shellQuote(joined)
	case strings.HasPrefix(joined, anchor+"/"):
		rest = joined[len(anchor)+1:]
		prefix = "/"
		if anchor != "" {
			prefix = shellQuote(anchor) + "/"
		}
	}

	segments := strings.Split(rest, "/")
	for idx, segment := range segments {
		if segment != "" && !strings.ContainsAny(segment, globChars) {
			segments[idx] = shellQuote(segment)
		}
	}
	return prefix + strings.Join(segments, "/")
}

// ResolvePatterns expands shell glob patterns (including ** and brace expansion) relative to
// base. A leading // refers to the project root. Patterns starting with ! remove previously
// matched paths. The matches of each pattern are sorted; the result keeps the order of the
// patterns and contains each path only once.
func ResolvePatterns(projectRoot, base string, patterns []string) ([]string, error) {
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}
	parser := syntax.NewParser()

	result := []string{}
	seen := map[string]bool{}
	for _, item := range patterns {
		exclude := strings.HasPrefix(item, "!")
		if exclude {
			item = item[1:]
		}

		item = quotePattern(projectRoot, base, item)

		matches, err := expandPattern(parser, &cfg, item)
		if err != nil {
			return nil, err
		}

		if exclude {
			excluded := make(map[string]bool, len(matches))
			for _, match := range matches {
				excluded[match] = true
			}

			filtered := result[:0]
			for _, path := range result {
				if excluded[path] {
					delete(seen, path)
				} else {
					filtered = append(filtered, path)
				}
			}
			result = filtered
			continue
		}

		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// GlobBase returns the leading part of pattern that doesn't contain any glob characters.
// Steps use it to compute output paths relative to the matched files.
func GlobBase(pattern string) string {
	pattern = filepath.ToSlash(strings.TrimPrefix(pattern, "!"))
	parts := strings.Split(pattern, "/")

	base := make([]string, 0, len(parts))
	for _, part := range parts[:len(parts)-1] {
		if strings.ContainsAny(part, "*?[{") {
			break
		}
		base = append(base, part)
	}

	if len(base) == 0 {
		if strings.HasPrefix(pattern, "/") {
			return string(filepath.Separator)
		}
		return "."
	}

	joined := strings.Join(base, "/")
	if joined == "" {
		return string(filepath.Separator)
	}
	return filepath.FromSlash(joined)
}
