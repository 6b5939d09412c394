package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shahar-caura/salestalk/internal/metrics"
	"github.com/shahar-caura/salestalk/internal/server"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the classification HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)
			store.OnReload(func(*taxonomy.Version) { m.TaxonomyReload() })

			c, err := a.newClassifier(ctx, store, m)
			if err != nil {
				return err
			}

			srv := server.New(server.Options{
				Port:            a.cfg.Server.Port,
				Version:         version,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
				Classifier:      c,
				Taxonomy:        store,
				Gatherer:        reg,
				Logger:          a.logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			if a.cfg.Taxonomy.Watch {
				g.Go(func() error { return store.Watch(gctx) })
			}
			g.Go(func() error { return srv.Run(gctx) })
			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port (overrides server.port)")
	return cmd
}
