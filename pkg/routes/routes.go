// Package routes turns a tree of page templates into a client-side routing table.
//
// Every template below the root directory becomes one route. The URL of a route is the
// template's path relative to the root with the extension removed; a template called "index"
// maps to its parent directory. The resulting table is written as a small JavaScript module
// and the templates themselves are copied unchanged next to the rest of the build output.
package routes

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrDuplicateRoute is returned when two templates map to the same URL.
var ErrDuplicateRoute = eris.New("duplicate route")

// ErrSameFile is returned by CopyFile when the source and the destination are the same file.
var ErrSameFile = eris.New("source and destination are the same file")

// Entry is a single template file discovered below the root directory.
type Entry struct {
	// Path is the location of the template on disk (absolute or relative to the working directory).
	Path string
}

// Route maps a URL path to the template that renders it.
type Route struct {
	URL      string
	Template string
}

// Options controls a generator run.
type Options struct {
	// Path is the location of the generated routing table.
	Path string
	// Root is the directory URLs are computed from.
	Root string
	// Dest receives unchanged copies of all templates. Nothing is copied if it's empty.
	Dest string
	// Prefix is prepended to the template path stored in the table.
	Prefix string
	// Var is the name of the exported symbol. Defaults to DefaultVar.
	Var string
	// Format selects the output syntax (FormatVar, FormatESM or FormatJSON). Defaults to FormatVar.
	Format string
}

// URLPath derives the canonical URL for a template path relative to the root.
func URLPath(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")

	ext := path.Ext(rel)
	rel = rel[:len(rel)-len(ext)]

	if rel == "index" {
		return "/"
	}
	rel = strings.TrimSuffix(rel, "/index")

	return "/" + rel
}

// FromPaths yields an entry for each of the passed paths in order.
func FromPaths(paths []string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, p := range paths {
			if !yield(Entry{Path: p}, nil) {
				return
			}
		}
	}
}

// Walk lazily yields every regular file below root whose extension is in exts. If exts is
// empty, all files are returned. Directories are visited in lexical order.
func Walk(root string, exts ...string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		stop := eris.New("stop")
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() || !matchExt(p, exts) {
				return nil
			}

			if !yield(Entry{Path: p}, nil) {
				return stop
			}
			return nil
		})

		if err != nil && err != stop {
			yield(Entry{}, eris.Wrapf(err, "failed to scan %s", root))
		}
	}
}

func matchExt(p string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}

	ext := filepath.Ext(p)
	for _, candidate := range exts {
		if strings.EqualFold(ext, candidate) {
			return true
		}
	}
	return false
}

// Generate builds the routing table for the passed entries, copies every template to
// opts.Dest and finally writes the table to opts.Path.
//
// Any error aborts the run. The table is written through a temporary file so that a failed
// run never leaves a partial table behind.
func Generate(ctx context.Context, opts Options, entries iter.Seq2[Entry, error]) (*Table, error) {
	if opts.Path == "" {
		return nil, eris.New("missing output path")
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve root %s", opts.Root)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read root directory %s", opts.Root)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("root %s is not a directory", opts.Root)
	}

	var dest string
	if opts.Dest != "" {
		dest, err = filepath.Abs(opts.Dest)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve destination %s", opts.Dest)
		}

		if dest == root {
			return nil, eris.Errorf("destination %s is the root directory", opts.Dest)
		}
	}

	err = ValidateVar(opts.Var)
	if err != nil {
		return nil, err
	}

	table := NewTable()
	for entry, err := range entries {
		if err != nil {
			return nil, err
		}

		if err = ctx.Err(); err != nil {
			return nil, err
		}

		src, err := filepath.Abs(entry.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve %s", entry.Path)
		}

		rel, err := filepath.Rel(root, src)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, eris.Errorf("template %s is not inside the root %s", entry.Path, opts.Root)
		}

		err = table.Add(Route{
			URL:      URLPath(rel),
			Template: path.Join(opts.Prefix, filepath.ToSlash(rel)),
		})
		if err != nil {
			return nil, err
		}

		if dest != "" {
			err = CopyFile(src, filepath.Join(dest, rel))
			if err != nil {
				return nil, err
			}
		}
	}

	content, err := table.Render(opts.Format, opts.Var)
	if err != nil {
		return nil, err
	}

	err = writeAtomic(opts.Path, content)
	if err != nil {
		return nil, err
	}

	return table, nil
}

// CopyFile copies src to dest, creating missing parent directories. The copy keeps the
// permission bits of src. Copying a file onto itself fails with ErrSameFile and leaves it untouched.
func CopyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src)
	}

	destInfo, err := os.Stat(dest)
	if err == nil && os.SameFile(info, destInfo) {
		return eris.Wrapf(ErrSameFile, "can't copy %s onto itself", src)
	}

	err = os.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return eris.Wrapf(out.Close(), "failed to write %s", dest)
}

func writeAtomic(dest string, content []byte) error {
	dir := filepath.Dir(dest)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return eris.Wrapf(err, "failed to create temporary file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(content)
	if err != nil {
		tmp.Close()
		return eris.Wrapf(err, "failed to write %s", tmp.Name())
	}

	err = tmp.Chmod(0o644)
	if err != nil {
		tmp.Close()
		return eris.Wrapf(err, "failed to set permissions on %s", tmp.Name())
	}

	err = tmp.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", tmp.Name())
	}

	return eris.Wrapf(os.Rename(tmp.Name(), dest), "failed to move routing table to %s", dest)
}
