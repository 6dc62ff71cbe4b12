package steps

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
)

// Compress writes a brotli-compressed .br file next to each file matched by src.
func Compress(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	files, err := sources(sc, args)
	if err != nil {
		return err
	}

	quality := brotli.BestCompression
	if value := args.Str("quality", ""); value != "" {
		quality, err = strconv.Atoi(value)
		if err != nil || quality < brotli.BestSpeed || quality > brotli.BestCompression {
			return eris.Errorf("invalid quality %s, expected a number between %d and %d", value, brotli.BestSpeed, brotli.BestCompression)
		}
	}

	for _, file := range files {
		if err = ctx.Err(); err != nil {
			return err
		}

		if filepath.Ext(file) == ".br" {
			continue
		}

		err = compressFile(file, file+".br", quality)
		if err != nil {
			return err
		}
	}

	sc.Log(ctx).Info().Msgf("Compressed %d files", len(files))
	return nil
}

func compressFile(src, dest string, quality int) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer out.Close()

	brw := brotli.NewWriterLevel(out, quality)
	_, err = io.Copy(brw, in)
	if err != nil {
		return eris.Wrapf(err, "failed to compress %s", src)
	}

	err = brw.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to compress %s", src)
	}

	return eris.Wrapf(out.Close(), "failed to write %s", dest)
}

// Archive packs the files matched by src into the .tar.xz file dest. Entry names are relative to
// base (or the glob base of the first pattern).
func Archive(ctx context.Context, sc *buildsys.StepContext, args buildsys.StepArgs) error {
	err := args.Require("src", "dest")
	if err != nil {
		return err
	}

	files, err := sources(sc, args)
	if err != nil {
		return err
	}

	base := sourceBase(sc, args)
	dest := sc.Path(args.Str("dest", ""))

	err = os.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer out.Close()

	xzw, err := xz.NewWriter(out)
	if err != nil {
		return eris.Wrap(err, "failed to initialize xz compression")
	}

	archive := tar.NewWriter(xzw)
	bar := getProgressBar(len(files), "Packing")
	defer bar.Finish()

	for _, file := range files {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = addTarEntry(archive, file, filepath.ToSlash(relPath(base, file)))
		if err != nil {
			return err
		}
		bar.Add(1)
	}

	err = archive.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to finish %s", dest)
	}

	err = xzw.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to finish %s", dest)
	}

	err = out.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", dest)
	}

	sc.Log(ctx).Info().Msgf("Packed %d files into %s", len(files), sc.Display(dest))
	return nil
}

func addTarEntry(archive *tar.Writer, file, name string) error {
	handle, err := os.Open(file)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", file)
	}
	defer handle.Close()

	info, err := handle.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", file)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return eris.Wrapf(err, "failed to build header for %s", file)
	}
	header.Name = name
	header.Uid = 0
	header.Gid = 0
	header.Uname = ""
	header.Gname = ""

	err = archive.WriteHeader(header)
	if err != nil {
		return eris.Wrapf(err, "failed to write header for %s", name)
	}

	_, err = io.Copy(archive, handle)
	return eris.Wrapf(err, "failed to pack %s", name)
}
