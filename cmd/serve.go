package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valueboard/internal/api"
	"github.com/sells-group/valueboard/internal/leaderboard"
	"github.com/sells-group/valueboard/internal/recompute"
	"github.com/sells-group/valueboard/internal/store"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with asynchronous recompute",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return serve(ctx, st, port)
	},
}

// serveEnv is the wired application behind the HTTP router.
type serveEnv struct {
	handler    http.Handler
	dispatcher *recompute.Dispatcher
	close      func()
}

func buildServeEnv(ctx context.Context, st store.Store) *serveEnv {
	agg := leaderboard.NewAggregator(st)
	var (
		querier  leaderboard.Querier = agg
		coordOps []recompute.Option
		closers  []func()
	)
	if rdb := newRedis(ctx); rdb != nil {
		cached := leaderboard.NewCachedAggregator(agg, rdb, cfg.Redis.CacheTTL())
		querier = cached
		coordOps = append(coordOps, recompute.WithInvalidator(cached))
		closers = append(closers, func() { _ = rdb.Close() })
	}

	coord := recompute.NewCoordinator(st, coordOps...)
	disp := recompute.NewDispatcher(coord, recompute.DispatcherConfig{
		Workers:   cfg.Recompute.Workers,
		QueueSize: cfg.Recompute.QueueSize,
		Retry:     retrySettings(),
	})

	deps := api.Deps{
		Leaderboard: querier,
		History:     agg,
		Pricing:     newPricingPipeline(st, disp),
		Writer:      st,
		Publisher:   disp,
	}
	if cfg.Arena.BaseURL != "" {
		deps.Arena = newArenaIngestor(st, disp)
	}

	return &serveEnv{
		handler:    api.NewRouter(deps, cfg.Server.AllowedOrigins),
		dispatcher: disp,
		close: func() {
			for _, c := range closers {
				c()
			}
		},
	}
}

func serve(ctx context.Context, st store.Store, port int) error {
	env := buildServeEnv(ctx, st)
	defer env.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           env.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g errgroup.Group
	// The dispatcher outlives ctx so queued events drain after shutdown.
	g.Go(func() error { return env.dispatcher.Run(context.WithoutCancel(ctx)) })
	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer stop()
		err := srv.Shutdown(shutdownCtx)
		env.dispatcher.Close()
		return err
	})

	zap.L().Info("starting server", zap.Int("port", port))
	listenErr := srv.ListenAndServe()
	cancel()
	waitErr := g.Wait()
	if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
		return eris.Wrap(listenErr, "server listen")
	}
	return waitErr
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
