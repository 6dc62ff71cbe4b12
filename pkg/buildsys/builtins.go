package buildsys

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.starlark.net/starlark"
)

func pathArg(value starlark.Value, what string) (string, error) {
	switch value := value.(type) {
	case starlark.String:
		return value.GoString(), nil
	case StarlarkPath:
		return string(value), nil
	default:
		return "", eris.Errorf("%s must be a string or path, not %s", what, value.Type())
	}
}

// resolve_path(*parts, base=None) joins parts relative to the script. With base, the result is
// relative to that directory instead of absolute.
func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx := getCtx(thread)

	var base starlark.Value = starlark.None
	err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "base?", &base)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return nil, eris.Errorf("%s: expected at least one path", fn.Name())
	}

	parts := make([]string, len(args))
	for idx, arg := range args {
		str, ok := arg.(starlark.String)
		if !ok {
			return nil, eris.Errorf("%s: argument %d is a %s, expected string", fn.Name(), idx+1, arg.Type())
		}
		parts[idx] = str.GoString()
	}

	result := normalizePath(ctx, parts...)
	if base != starlark.None {
		baseDir, err := pathArg(base, "base")
		if err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(normalizePath(ctx, baseDir), result)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: can't make %s relative to %s", fn.Name(), result, baseDir)
		}
		result = rel
	}

	return StarlarkPath(result), nil
}

// messageBuiltin implements info(), warn() and error(). error() aborts the script.
func messageBuiltin(level string) *starlark.Builtin {
	return starlark.NewBuiltin(level, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var message string
		err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
		if err != nil {
			return nil, err
		}

		switch level {
		case "info":
			info(thread, "%s", message)
		case "warn":
			warn(thread, "%s", message)
		default:
			return nil, eris.New(message)
		}
		return starlark.None, nil
	})
}

// getenv(name, default="") checks the variables set by the script before the process environment.
func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, fallback string
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &fallback)
	if err != nil {
		return nil, err
	}

	if value, ok := getCtx(thread).envOverrides[name]; ok {
		return starlark.String(value), nil
	}
	if value, ok := os.LookupEnv(name); ok {
		return starlark.String(value), nil
	}
	return starlark.String(fallback), nil
}

// prepend_path(dir) puts dir in front of PATH for every command the tasks run.
func prependPathDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirArg starlark.Value
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirArg)
	if err != nil {
		return nil, err
	}

	dir, err := pathArg(dirArg, "dir")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	current, ok := ctx.envOverrides["PATH"]
	if !ok {
		current = os.Getenv("PATH")
	}

	ctx.envOverrides["PATH"] = normalizePath(ctx, dir) + string(os.PathListSeparator) + current
	return starlark.String(ctx.envOverrides["PATH"]), nil
}

// statBuiltin implements isdir() and isfile(). Missing paths report false.
func statBuiltin(name string, check func(fs.FileMode) bool) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var target string
		err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &target)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(normalizePath(getCtx(thread), target))
		return starlark.Bool(err == nil && check(info.Mode())), nil
	})
}

// read_json(file, path, default=None) looks up a gjson path in a JSON file. Files are parsed once
// per script run.
func readJSON(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file, query string
	var fallback starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &file, &query, &fallback)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	file = normalizePath(ctx, file)

	content, loaded := ctx.jsonCache[file]
	if !loaded {
		content, err = os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", simplifyPath(ctx, file))
		}

		if !gjson.ValidBytes(content) {
			return nil, eris.Errorf("%s is not valid JSON", simplifyPath(ctx, file))
		}
		ctx.jsonCache[file] = content
	}

	result := gjson.GetBytes(content, query)
	if !result.Exists() {
		return fallback, nil
	}

	return interfaceToStarlark(thread, result.Value())
}
