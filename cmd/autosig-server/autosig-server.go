package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"code.autosig.org/golang/internal/config"
	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/internal/storage"
	"code.autosig.org/golang/internal/utils"
	"code.autosig.org/golang/pkg/autosig"
	"code.autosig.org/golang/pkg/wxsession"
)

const usageFmt = `
Command Usage: %s [Flags]
  Run the autosig API server.
  Configuration values are read from the -config file then from AUTOSIG_* environment variables.

Flags:
------
`

type Cmd struct {
	Config    config.Config
	RebuildDB bool
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	var cfgPath string
	flags.StringVar(&cfgPath, "config", "", utils.Dedent(`
	Path of the YAML configuration file.
	Default configuration is used if not set.
	`))
	flags.BoolVar(&cmd.RebuildDB, "rebuild-db", false, utils.Dedent(`
	Drop all accounts and recreate the credential store schema before serving.
	`))
	flags.Parse(args)

	cfg, err := config.Load(cfgPath)
	if nil != err {
		log.Fatalf("Failed loading configuration, got error %v", err)
	}
	cmd.Config = cfg

	return &cmd
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])
	err := cmd.Run()
	if nil != err {
		log.Fatalf("Server failure, got error %v", err)
	}
}

// Run serves the autosig API until SIGINT or SIGTERM is received.
func (self *Cmd) Run() error {
	cfg := self.Config
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if nil != err {
		return err
	}
	slog.SetDefault(logger)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}
	obs := observability.Observability{Logger: logger, Metrics: metrics}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = observability.SetObservability(ctx, &obs)

	store, err := storage.Open(ctx, cfg.Store, self.RebuildDB)
	if nil != err {
		return err
	}
	defer store.Close()

	srv, err := autosig.NewService(store, autosig.Options{KeyBits: cfg.Keys.Bits, Timeout: cfg.Timeouts.Store})
	if nil != err {
		return err
	}
	api := autosig.API{Service: srv}
	if cfg.WeChat.Enabled() {
		exchanger := wxsession.Client{
			AppId:    cfg.WeChat.AppId,
			Secret:   cfg.WeChat.Secret,
			Endpoint: cfg.WeChat.Endpoint,
			Timeout:  cfg.Timeouts.Exchange,
		}
		api.Sessions, err = wxsession.NewService(exchanger, store, cfg.WeChat.SessionLifetime, cfg.Timeouts.Store)
		if nil != err {
			return err
		}
	}

	mux := http.NewServeMux()
	api.Register(mux)
	if nil != metrics {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	mw := observability.Middleware{TraceIdHeader: cfg.TraceIdHeader, Logger: logger, Metrics: metrics}
	hs := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mw.Wrap(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- hs.ListenAndServe()
	}()
	logger.Info(
		"autosig server started",
		"listen", cfg.Listen,
		"store", store.Driver(),
		"wechat", cfg.WeChat,
		"metrics", cfg.Metrics.Enabled,
	)

	select {
	case err = <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()
	err = hs.Shutdown(sctx)
	if nil != err {
		return err
	}
	err = <-errc
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("autosig server stopped")

	return nil
}
