package steps

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

// NextVersion increments current according to kind (major, minor, patch or prerelease). preid
// names the prerelease series (e.g. "beta") and is only used for prerelease bumps.
func NextVersion(current, kind, preid string) (string, error) {
	version, err := semver.NewVersion(current)
	if err != nil {
		return "", eris.Wrapf(err, "invalid version %s", current)
	}

	var next semver.Version
	switch kind {
	case "major":
		next = version.IncMajor()
	case "minor":
		next = version.IncMinor()
	case "patch":
		next = version.IncPatch()
	case "prerelease":
		next, err = nextPrerelease(*version, preid)
		if err != nil {
			return "", err
		}
	default:
		return "", eris.Errorf("unknown version bump %q, expected major, minor, patch or prerelease", kind)
	}

	return next.String(), nil
}

func nextPrerelease(version semver.Version, preid string) (semver.Version, error) {
	current := version.Prerelease()
	if current == "" {
		version = version.IncPatch()
		if preid == "" {
			return version.SetPrerelease("0")
		}
		return version.SetPrerelease(preid + ".0")
	}

	parts := strings.Split(current, ".")
	if preid != "" && parts[0] != preid {
		return version.SetPrerelease(preid + ".0")
	}

	last := len(parts) - 1
	if n, err := strconv.Atoi(parts[last]); err == nil {
		parts[last] = strconv.Itoa(n + 1)
	} else {
		parts = append(parts, "0")
	}

	return version.SetPrerelease(strings.Join(parts, "."))
}

// Bump increments the version field of every JSON manifest in files. The rest of each file is
// left untouched.
func Bump(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("files", "type")
	if err != nil {
		return err
	}

	files, err := sc.Resolve(args.List("files"))
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return eris.Errorf("none of %s exist", strings.Join(args.List("files"), ", "))
	}

	kind := args.Str("type", "patch")
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file)
		}

		current := gjson.GetBytes(content, "version")
		if !current.Exists() {
			return eris.Errorf("%s has no version field", sc.Display(file))
		}

		next, err := NextVersion(current.String(), kind, args.Str("preid", ""))
		if err != nil {
			return eris.Wrapf(err, "failed to bump %s", sc.Display(file))
		}

		content, err = sjson.SetBytes(content, "version", next)
		if err != nil {
			return eris.Wrapf(err, "failed to update %s", sc.Display(file))
		}

		info, err := os.Stat(file)
		if err != nil {
			return eris.Wrapf(err, "failed to check %s", file)
		}

		err = os.WriteFile(file, content, info.Mode().Perm())
		if err != nil {
			return eris.Wrapf(err, "failed to write %s", file)
		}

		sc.Log(ctx).Info().Msgf("Bumped %s from %s to %s", sc.Display(file), current.String(), next)
	}

	return nil
}

func gitSignature(sc *buildsys.StepContext, args buildsys.StepArgs) *object.Signature {
	lookup := func(arg, env string) string {
		if value := args.Str(arg, ""); value != "" {
			return value
		}
		if value, ok := sc.Env[env]; ok {
			return value
		}
		return os.Getenv(env)
	}

	name := lookup("author_name", "GIT_AUTHOR_NAME")
	email := lookup("author_email", "GIT_AUTHOR_EMAIL")
	if name == "" || email == "" {
		// go-git falls back to the repository's user config
		return nil
	}

	return &object.Signature{
		Name:  name,
		Email: email,
		When:  time.Now(),
	}
}

// expandDirs replaces every directory in paths with the regular files below it. Each file is
// listed once.
func expandDirs(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	result := make([]string, 0, len(paths))
	for _, item := range paths {
		err := filepath.WalkDir(item, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to scan %s", item)
		}
	}
	return result, nil
}

// Publish commits files and creates an annotated tag for the version found in version_file
// (package.json by default).
func Publish(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("files")
	if err != nil {
		return err
	}

	versionFile := sc.Path(args.Str("version_file", "package.json"))
	manifest, err := os.ReadFile(versionFile)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", versionFile)
	}

	version := gjson.GetBytes(manifest, "version").String()
	if version == "" {
		return eris.Errorf("%s has no version field", sc.Display(versionFile))
	}

	paths, err := sc.Resolve(args.List("files"))
	if err != nil {
		return err
	}

	files, err := expandDirs(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return eris.New("none of the passed files exist")
	}

	repo, err := git.PlainOpenWithOptions(sc.ProjectRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return eris.Wrapf(err, "failed to open the git repository at %s", sc.ProjectRoot)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return eris.Wrap(err, "failed to open the worktree")
	}

	root := wt.Filesystem.Root()
	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil || strings.HasPrefix(rel, "..") {
			return eris.Errorf("%s is outside of the repository", file)
		}

		_, err = wt.Add(filepath.ToSlash(rel))
		if err != nil {
			return eris.Wrapf(err, "failed to stage %s", rel)
		}
	}

	sig := gitSignature(sc, args)
	hash, err := wt.Commit(args.Str("message", "bump version"), &git.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return eris.Wrap(err, "failed to commit")
	}

	tag := args.Str("tag_prefix", "v") + version
	_, err = repo.CreateTag(tag, hash, &git.CreateTagOptions{
		Tagger:  sig,
		Message: "tagging as " + tag,
	})
	if err != nil {
		return eris.Wrapf(err, "failed to create tag %s", tag)
	}

	sc.Log(ctx).Info().Msgf("Committed %d files and tagged %s as %s", len(files), hash.String()[:7], tag)
	return nil
}
