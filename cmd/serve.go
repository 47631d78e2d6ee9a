package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/crashlens/internal/logging"
	"github.com/KaramelBytes/crashlens/internal/metrics"
	"github.com/KaramelBytes/crashlens/internal/normalize"
	"github.com/KaramelBytes/crashlens/internal/server"
	"github.com/KaramelBytes/crashlens/internal/session"
	"github.com/KaramelBytes/crashlens/internal/watch"
)

var (
	srvSource  sourceFlags
	srvAddr    string
	srvNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive collision dashboard over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if c.DataPath == "" {
			return errors.New("no data file: set data_path or pass --data")
		}
		if srvAddr != "" {
			c.ListenAddr = srvAddr
		}
		log, err := newLogger(c)
		if err != nil {
			return err
		}
		dopt, nf, err := srvSource.resolve(c)
		if err != nil {
			return err
		}

		m := metrics.New()
		sess := session.New(
			session.FileLoader(c.DataPath, dopt, normalize.Options{Numbers: nf, Logger: logging.ForModule(log, "normalize")}),
			session.Options{Logger: log, Metrics: m},
		)
		srv, err := server.New(sess, server.Options{
			Addr:     c.ListenAddr,
			MaxRows:  dopt.MaxRows,
			Controls: c.Controls(),
			Renderer: c.Renderer(),
			Logger:   log,
			Metrics:  m,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// warm the cache
		if _, err := sess.Table(ctx, dopt.MaxRows); err != nil {
			log.Warn("initial load failed; the page will report the error", "error", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		if c.WatchData && !srvNoWatch {
			w := watch.New(c.DataPath, sess.Invalidate, logging.ForModule(log, "watch"))
			if err := w.Start(gctx); err != nil {
				log.Warn("file watching disabled", "error", err)
			}
		}
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			timeout := time.Duration(c.ShutdownTimeoutSec) * time.Second
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			sctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		})
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Dashboard for %s at http://%s/\n", c.DataPath, c.ListenAddr)
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	srvSource.register(serveCmd.Flags())
	serveCmd.Flags().StringVar(&srvAddr, "addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().BoolVar(&srvNoWatch, "no-watch", false, "do not reload when the data file changes")
}
