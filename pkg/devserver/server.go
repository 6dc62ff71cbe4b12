// Package devserver serves the build output during development. Requests pass through
// mod_rewrite style rules so that the single-page app's client-side routes resolve to its index.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"
)

// Options configures a Server.
type Options struct {
	// Address to listen on, e.g. 127.0.0.1:8080
	Address string
	// Root is the directory that is served.
	Root string
	// Rewrites are applied in order. DefaultRewrite is used if the list is empty.
	Rewrites []string
	Logger   *zerolog.Logger
}

// Server is a static file server for the build directory.
type Server struct {
	opts    Options
	handler http.Handler
}

// New validates opts and prepares the handler chain.
func New(opts Options) (*Server, error) {
	if opts.Address == "" {
		opts.Address = "127.0.0.1:8080"
	}
	if opts.Root == "" {
		opts.Root = "build"
	}
	if len(opts.Rewrites) == 0 {
		opts.Rewrites = []string{DefaultRewrite}
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", opts.Root)
	}
	opts.Root = root

	rules, err := ParseRules(opts.Rewrites)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).Handler(staticHandler(root))

	sm := secure.New(secure.Options{
		IsDevelopment:      true,
		BrowserXssFilter:   true,
		ContentTypeNosniff: true,
		FrameDeny:          true,
	})

	return &Server{
		opts:    opts,
		handler: sm.Handler(makeLogMiddleware(opts.Logger, makeRewriteMiddleware(rules, r))),
	}, nil
}

// Handler returns the complete handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Address returns the address the server listens on.
func (s *Server) Address() string {
	return s.opts.Address
}

// ListenAndServe serves requests until ctx is cancelled and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := http.Server{
		Handler:      s.handler,
		Addr:         s.opts.Address,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.opts.Logger.Info().Msgf("Serving %s on http://%s/", s.opts.Root, s.opts.Address)
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrapf(err, "failed to listen on %s", s.opts.Address)
	}

	return eris.Wrap(<-done, "failed to shut down")
}

// staticHandler serves files below root. Unlike http.FileServer, it never redirects requests for
// index.html, which would break rewrites to the app's index.
func staticHandler(root string) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		file := filepath.Join(root, filepath.FromSlash(name))

		info, err := os.Stat(file)
		if err == nil && info.IsDir() {
			file = filepath.Join(file, "index.html")
			info, err = os.Stat(file)
		}

		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.NotFound(rw, r)
			} else {
				Log(r.Context()).Error().Err(err).Msgf("failed to check %s", file)
				http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
			return
		}

		if info.IsDir() || strings.HasPrefix(filepath.Base(file), ".") {
			http.NotFound(rw, r)
			return
		}

		handle, err := os.Open(file)
		if err != nil {
			Log(r.Context()).Error().Err(err).Msgf("failed to open %s", file)
			http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		defer handle.Close()

		rw.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(rw, r, info.Name(), info.ModTime(), handle)
	})
}
