package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackmap/internal/testserver"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve captured page resources over HTTP",
		Long: `Serve makes a directory of captured scripts and documents available over
HTTP, so traces can be resolved with --content http against a stand-in for
the original page. index.html also answers for unknown paths.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), args[0], addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, dir, addr string) error {
	files, err := testserver.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("load %s: %w", dir, err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           testserver.Handler(files),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printSuccess("Serving %d files from %s", len(files), dir)
	printKeyValue("URL", StyleLink.Render("http://"+addr+"/"))
	printNextStep("Resolve", "stackmap resolve --base http://"+addr+"/ traces.json")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		c.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
