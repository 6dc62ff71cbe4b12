package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ConsoleWriter renders zerolog's JSON events as short, coloured lines.
type ConsoleWriter struct {
	Out     io.Writer
	NoColor bool

	buffer strings.Builder
	lock   sync.Mutex
}

// NewConsoleWriter returns a ConsoleWriter for out (stderr if nil).
func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleWriter{Out: out}
}

func debugEnabled() bool {
	return os.Getenv("BUILDSYS_DEBUG") != ""
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	colorize := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: w.NoColor,
	}

	w.buffer.Reset()
	switch evt[zerolog.LevelFieldName] {
	case "fatal":
		fallthrough
	case "error":
		w.buffer.WriteString(colorize.Color("[red]"))
	case "warn":
		w.buffer.WriteString(colorize.Color("[yellow]"))
	case "debug":
		fallthrough
	case "trace":
		w.buffer.WriteString(colorize.Color("[blue]"))
	default:
		if evt["command"] == true {
			w.buffer.WriteString(colorize.Color("[dark_gray]"))
		} else {
			w.buffer.WriteString(colorize.Color("[green]"))
		}
	}

	if task, ok := evt["task"].(string); ok {
		w.buffer.WriteString(task + ": ")
	}

	if req, ok := evt["req"].(string); ok {
		w.buffer.WriteString(req + " ")
	}

	if evt[zerolog.LevelFieldName] == "error" {
		w.buffer.WriteString("Error: ")
	}

	msg, _ := evt[zerolog.MessageFieldName].(string)

	if path, ok := evt["path"].(string); ok {
		// simplify the path
		relPath, err := filepath.Rel(".", path)
		if err == nil {
			msg = strings.ReplaceAll(msg, path, relPath)
		}
	}

	w.buffer.WriteString(msg)

	if errorDetails, ok := evt[zerolog.ErrorFieldName]; ok {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(fmt.Sprint(errorDetails))
	}

	if debugEnabled() {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		w.buffer.WriteString("\n")
		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString(colorize.Color("[reset]"))
	w.buffer.WriteString("\n")

	_, err = io.WriteString(w.Out, w.buffer.String())
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, debugEnabled())
	}
}
