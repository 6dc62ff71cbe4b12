package buildsys

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// joinPath applies each path in pathList to start. Paths starting with // are relative to the
// project root, absolute paths replace the current result and everything else is joined.
func joinPath(projectRoot, start string, pathList ...string) string {
	result := start

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

func normalizePath(ctx *parserCtx, pathList ...string) string {
	return joinPath(ctx.projectRoot, filepath.Dir(ctx.filepath), pathList...)
}

func simplifyPath(ctx *parserCtx, path string) string {
	return simplifyProjectPath(ctx.projectRoot, path)
}

func simplifyProjectPath(projectRoot, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if absPath == projectRoot {
		return "//"
	}

	if strings.HasPrefix(absPath, projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(projectRoot)+1:])
	}
	return path
}

// mergeEnv returns the process environment with overrides applied.
func mergeEnv(overrides map[string]string) []string {
	osEnv := os.Environ()
	shellEnv := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		// skip overriden entries to avoid conflicts
		if _, present := overrides[parts[0]]; !present {
			shellEnv = append(shellEnv, item)
		}
	}

	for k, v := range overrides {
		shellEnv = append(shellEnv, fmt.Sprintf("%s=%s", k, v))
	}

	return shellEnv
}

func interfaceToStarlark(thread *starlark.Thread, value interface{}) (starlark.Value, error) {
	// handle a few simple and common cases first
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float32:
		return starlark.Float(value), nil
	case float64:
		return starlark.Float(value), nil
	case []string:
		items := make(starlark.Tuple, len(value))
		for idx, raw := range value {
			items[idx] = starlark.String(raw)
		}

		return items, nil
	case map[string]string:
		dict := starlark.NewDict(len(value))
		for k, v := range value {
			err := dict.SetKey(starlark.String(k), starlark.String(v))
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	refValue := reflect.ValueOf(value)

	var err error
	switch refValue.Kind() {
	case reflect.Slice:
		fallthrough
	case reflect.Array:
		tuple := make(starlark.Tuple, refValue.Len())
		for idx := 0; idx < refValue.Len(); idx++ {
			tuple[idx], err = interfaceToStarlark(thread, refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
		}

		return tuple, nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := interfaceToStarlark(thread, iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			value, err := interfaceToStarlark(thread, iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(key, value)
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %v", refValue.Kind())
}

// starlarkToArg converts a keyword argument of a step call.
func starlarkToArg(args *StepArgs, name string, value starlark.Value) error {
	switch value := value.(type) {
	case starlark.String:
		args.Strings[name] = value.GoString()
	case StarlarkPath:
		args.Strings[name] = string(value)
	case starlark.Bool:
		args.Bools[name] = bool(value)
	case starlark.Int:
		args.Strings[name] = value.String()
	case starlark.NoneType:
		// treat None like an omitted argument
	case starlarkIterable:
		items := make([]string, 0, value.Len())
		iter := value.Iterate()
		defer iter.Done()

		var item starlark.Value
		for iter.Next(&item) {
			switch item := item.(type) {
			case starlark.String:
				items = append(items, item.GoString())
			case StarlarkPath:
				items = append(items, string(item))
			default:
				return eris.Errorf("expected all items in %s to be strings or paths but found %s", name, item.Type())
			}
		}
		args.Lists[name] = items
	default:
		return eris.Errorf("unsupported type %s for argument %s", value.Type(), name)
	}

	return nil
}
