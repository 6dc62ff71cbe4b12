package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys"
	"github.com/zurb/foundation-apps/build-tools/pkg/config"
)

// Session bundles the configuration and logger shared by all commands.
type Session struct {
	Config *config.Config
	Logger *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closer io.Closer
}

// Context returns a context that carries the logger and is cancelled on Ctrl-C.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close stops listening for signals and closes the log file if there is one.
func (s *Session) Close() {
	s.cancel()
	if s.closer != nil {
		s.closer.Close()
	}
}

func stringFlag(cmd *cobra.Command, name string) (string, bool) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil || !flag.Changed {
		return "", false
	}
	return flag.Value.String(), true
}

// Prepare loads the configuration (honouring the --config, --log-level and --log-json flags if
// the command has them) and sets up logging.
func Prepare(cmd *cobra.Command) (*Session, error) {
	files := []string{}
	if file, ok := stringFlag(cmd, "config"); ok {
		files = append(files, file)
	}

	cfg, loader := config.Loader(files...)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	if level, ok := stringFlag(cmd, "log-level"); ok {
		cfg.Log.Level = level
	}
	if value, ok := stringFlag(cmd, "log-json"); ok {
		cfg.Log.JSON = value == "true"
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	session := &Session{Config: cfg}

	var out io.Writer = os.Stderr
	noColor := false
	if cfg.Log.File != "" {
		logFile, err := os.Create(cfg.Log.File)
		if err != nil {
			return nil, eris.Wrap(err, "failed to open log file")
		}

		out = logFile
		noColor = true
		session.closer = logFile
	}

	if !cfg.Log.JSON {
		writer := NewConsoleWriter(out)
		writer.NoColor = noColor
		out = writer
	} else {
		zerolog.ErrorMarshalFunc = func(err error) interface{} {
			return eris.ToJSON(err, debugEnabled())
		}
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	session.Logger = &logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	session.ctx = buildsys.WithLogger(ctx, &logger)
	session.cancel = cancel

	return session, nil
}
