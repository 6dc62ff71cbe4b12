package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys/cmd"
	"github.com/zurb/foundation-apps/build-tools/pkg/config"
	"github.com/zurb/foundation-apps/build-tools/pkg/devserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the build directory",
	Long:  `Starts the dev server without building or watching anything.`,
	RunE: func(c *cobra.Command, args []string) error {
		session, err := cmd.Prepare(c)
		if err != nil {
			return err
		}
		defer session.Close()

		applyServerFlags(c, session.Config)

		server, err := newServer(session, "")
		if err != nil {
			return err
		}

		return server.ListenAndServe(session.Context())
	},
}

func addServerFlags(c *cobra.Command) {
	c.Flags().StringP("address", "a", "", "address to listen on (default: 127.0.0.1:8080)")
	c.Flags().StringP("root", "r", "", "directory to serve (default: build)")
}

func applyServerFlags(c *cobra.Command, cfg *config.Config) {
	if address, err := c.Flags().GetString("address"); err == nil && address != "" {
		cfg.HTTP.Address = address
	}
	if root, err := c.Flags().GetString("root"); err == nil && root != "" {
		cfg.HTTP.Root = root
	}
}

// newServer builds the dev server from the session's configuration. A relative root is
// resolved against base.
func newServer(session *cmd.Session, base string) (*devserver.Server, error) {
	root := session.Config.HTTP.Root
	if base != "" && !filepath.IsAbs(root) {
		root = filepath.Join(base, root)
	}

	return devserver.New(devserver.Options{
		Address:  session.Config.HTTP.Address,
		Root:     root,
		Rewrites: session.Config.HTTP.Rewrites,
		Logger:   session.Logger,
	})
}

func init() {
	addServerFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
