package buildsys

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"reflect"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
	gob.Register(TaskCmdStep{})
}

// ErrStaleCache is returned by ReadCache if the cache doesn't match the current script or options.
var ErrStaleCache = eris.New("cache is stale")

type cacheHeader struct {
	Script  string
	ModTime int64
	Options map[string]string
}

func newCacheHeader(script string, options map[string]string) (cacheHeader, error) {
	script, err := filepath.Abs(script)
	if err != nil {
		return cacheHeader{}, err
	}

	info, err := os.Stat(script)
	if err != nil {
		return cacheHeader{}, eris.Wrapf(err, "failed to check %s", script)
	}

	if options == nil {
		options = map[string]string{}
	}

	return cacheHeader{
		Script:  script,
		ModTime: info.ModTime().UnixNano(),
		Options: options,
	}, nil
}

// WriteCache stores the parsed task list for script and the options it was parsed with.
func WriteCache(file, script string, options map[string]string, list TaskList) error {
	header, err := newCacheHeader(script, options)
	if err != nil {
		return err
	}

	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", file)
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(header)
	if err != nil {
		return eris.Wrap(err, "failed to encode cache header")
	}

	return eris.Wrap(encoder.Encode(list), "failed to encode task list")
}

// ReadCache loads a task list stored by WriteCache. ErrStaleCache is returned if the script was
// modified since or different options were passed.
func ReadCache(file, script string, options map[string]string) (TaskList, error) {
	expected, err := newCacheHeader(script, options)
	if err != nil {
		return nil, err
	}

	handle, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var header cacheHeader
	err = decoder.Decode(&header)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", file)
	}

	if header.Options == nil {
		header.Options = map[string]string{}
	}

	if !reflect.DeepEqual(header, expected) {
		return nil, ErrStaleCache
	}

	var result TaskList
	err = decoder.Decode(&result)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", file)
	}

	return result, nil
}
