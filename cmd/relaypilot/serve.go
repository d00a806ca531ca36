package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaypilot/relaypilot/internal/config"
	"github.com/relaypilot/relaypilot/internal/journal"
	"github.com/relaypilot/relaypilot/internal/journal/factory"
	"github.com/relaypilot/relaypilot/internal/metrics"
	"github.com/relaypilot/relaypilot/internal/server"
	"github.com/relaypilot/relaypilot/internal/supervisor"
)

const usageSampleInterval = 15 * time.Second

// runServe is the daemon entrypoint: everything is wired here and torn
// down in reverse order when the supervisor stops.
func runServe(configPath string) error {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		// No logger yet; the config error is the final word.
		slog.Error("configuration load failed", "error", err)
		return err
	}

	lg := cfg.Log.NewSlogger()
	slog.SetDefault(lg)
	lg.Info("relaypilot starting", "version", version, "config", configPath, "config_version", cfg.Version)

	var rec *journal.Recorder
	if cfg.Journal.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.Journal.DSN, cfg.Journal.Table)
		if err != nil {
			lg.Warn("journal disabled", "dsn", cfg.Journal.DSN, "error", err)
		} else {
			rec = journal.NewRecorder(sink, lg)
			defer rec.Close()
		}
	}

	sup, err := supervisor.New(mgr, supervisor.Options{Logger: lg, Journal: rec})
	if err != nil {
		lg.Error("supervisor construction failed", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			lg.Error("metrics registration failed", "error", err)
			return err
		}
		go serveMetrics(cfg.Metrics.Listen, lg)
		sampler := metrics.NewUsageSampler(usageSampleInterval, func() map[string]int {
			snap := sup.Snapshot()
			pids := make(map[string]int, len(snap.Workers))
			for _, ws := range snap.Workers {
				pids[ws.ID] = ws.PID
			}
			return pids
		}, lg)
		go sampler.Run(ctx)
	}

	var httpSrv *http.Server
	if cfg.Server.Enabled {
		httpSrv, err = server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, sup)
		if err != nil {
			lg.Error("status server failed to start", "error", err)
			return err
		}
		lg.Info("status server listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				lg.Info("reload signal received")
				if err := sup.Reload(); err != nil {
					lg.Error("reload failed", "error", err)
				}
			default:
				lg.Info("termination signal received", "signal", sig.String())
				sup.Shutdown()
			}
		}
	}()

	runErr := sup.Run(ctx)

	if httpSrv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(sctx)
		scancel()
	}
	if runErr != nil {
		lg.Error("supervisor exited with error", "error", runErr)
		return runErr
	}
	lg.Info("relaypilot stopped")
	return nil
}

func serveMetrics(addr string, lg *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lg.Error("metrics server stopped", "error", err)
	}
}
