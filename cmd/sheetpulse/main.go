package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sheetpulse/sheetpulse/internal/api"
	"github.com/sheetpulse/sheetpulse/internal/cache"
	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/history"
	"github.com/sheetpulse/sheetpulse/internal/metrics"
	"github.com/sheetpulse/sheetpulse/internal/notify"
	"github.com/sheetpulse/sheetpulse/internal/report"
	"github.com/sheetpulse/sheetpulse/internal/session"
	"github.com/sheetpulse/sheetpulse/internal/sheets"
	"github.com/sheetpulse/sheetpulse/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with credentials")
	uiDir := flag.String("ui-dir", "", "serve the dashboard UI static files from this directory; leave empty to disable")
	once := flag.Bool("once", false, "push the default businesses once and exit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "sheetpulse: load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sheetpulse starting",
		"config", *configPath,
		"source", cfg.Source.Type,
		"businesses", len(cfg.Businesses),
		"http_port", cfg.Server.HTTPPort,
		"storage", cfg.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := sheets.New(cfg)
	if err != nil {
		slog.Error("failed to build sheet source", "err", err)
		os.Exit(1)
	}

	// Fetch cache with background TTL eviction.
	fetchCache := cache.New(cfg.Cache.TTL)
	go fetchCache.Run(ctx)

	var hist *history.Store
	if cfg.Storage.Backend == "sqlite" {
		hist, err = history.Open(cfg.Storage.Path, cfg.Storage.Retention)
		if err != nil {
			slog.Error("failed to open push history", "path", cfg.Storage.Path, "err", err)
			os.Exit(1)
		}
		defer hist.Close()
		go hist.Run(ctx)
	}

	reg := metrics.NewRegistry()
	pusher := report.NewPusher(cfg, cache.Wrap(src, fetchCache), notify.New(cfg.Push.Webhooks, nil), hist, reg)

	if *once {
		outcomes := pusher.PushBatch(ctx, cfg.Push.Businesses, "", nil)
		for _, o := range outcomes {
			slog.Info("push result", "business", o.Business, "status", o.Status,
				"delivered", o.Delivered, "skipped", o.Skipped)
		}
		return
	}

	// Hot-reload swaps businesses, comparison settings and webhook targets.
	// Source credentials, ports and storage need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			pusher.SetConfig(updated)
			slog.Info("config hot-reloaded",
				"businesses", len(updated.Businesses),
				"webhooks", len(updated.Push.Webhooks),
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	go report.NewScheduler(pusher, cfg.Push.Interval).Run(ctx)

	handler := api.New(api.Options{
		Pusher:   pusher,
		Cache:    fetchCache,
		Sessions: session.NewStore(cfg.Server.AccessCode(), session.DefaultTTL),
		Metrics:  reg.Handler(),
	})

	// WebSocket hub: broadcasts the overview on the configured interval.
	hub := ws.New(func(ctx context.Context) (any, error) {
		return handler.BuildOverview(ctx, pusher.Config().Period), nil
	}, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)
	handler.Handle("/ws/stream", hub)

	// Optional: serve the pre-built UI. Unknown paths fall back to index.html.
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		handler.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		}))
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("sheetpulse shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
