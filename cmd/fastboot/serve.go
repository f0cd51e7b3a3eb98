package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cryguy/fastboot"
	"github.com/cryguy/fastboot/internal/cache"
	fblog "github.com/cryguy/fastboot/internal/log"
)

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a built application, pre-rendering its routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.config)
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), &cfg)
			if err := cfg.validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func loadApp(cfg Config) (*fastboot.App, error) {
	files, err := fastboot.Files(os.DirFS(cfg.Dir), ".")
	if err != nil {
		return nil, err
	}
	return fastboot.Create(cfg.Name, files)
}

// newServer builds the router and returns it with a function releasing
// what it opened.
func newServer(ctx context.Context, cfg Config, log zerolog.Logger) (http.Handler, func(), error) {
	app, err := loadApp(cfg)
	if err != nil {
		return nil, nil, err
	}

	var site http.Handler = app
	cleanup := func() {}
	if cfg.FastBoot {
		var store cache.Store
		if cfg.Cache > 0 && cfg.CacheDB != "" {
			db, err := cache.OpenSQLite(cfg.CacheDB)
			if err != nil {
				return nil, nil, err
			}
			store = db
		}
		handlerLog := fblog.WithComponent("handler")
		h, err := fastboot.Handle(ctx, fastboot.HandlerOptions{
			App:      app,
			Origin:   cfg.Origin,
			Cache:    cfg.Cache,
			Store:    store,
			Isolated: cfg.Isolated,
			Instance: []fastboot.Option{fastboot.WithConfig(cfg.engine())},
			Logger:   &handlerLog,
		})
		if err != nil {
			if store != nil {
				_ = store.Close()
			}
			return nil, nil, err
		}
		site = h
		cleanup = func() {
			h.Close()
			if store != nil {
				_ = store.Close()
			}
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
		}
		r.Handle("/*", site)
	})

	log.Info().
		Str("app", cfg.Name).
		Str("dir", cfg.Dir).
		Bool("fastboot", cfg.FastBoot).
		Bool("isolated", cfg.Isolated).
		Dur("cache", cfg.Cache).
		Msg("application loaded")
	return r, cleanup, nil
}

func serve(ctx context.Context, cfg Config) error {
	log := fblog.WithComponent("serve")
	handler, cleanup, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
