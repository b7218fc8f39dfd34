package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trakt-toggl-sync/internal/app"
	"trakt-toggl-sync/internal/config"
)

func main() {
	// Flags. The default invocation (no flags) runs a single sync pass and
	// exits, which is what the scheduled deployment calls.
	login := flag.Bool("login", false, "Bootstrap the Trakt token via device authorization and exit")
	interval := flag.Duration("interval", 0, "Keep running and sync every interval (0 = run once)")
	serve := flag.String("serve", "", "Listen address for the HTTP trigger server instead of running a sync")
	from := flag.String("from", "", "Window start, RFC3339 or YYYY-MM-DD (default: now - TRAKT_HISTORY_DAYS)")
	to := flag.String("to", "", "Window end, RFC3339 or YYYY-MM-DD (default: now)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	// Logger
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// App
	application, err := app.New(logger, cfg)
	if err != nil {
		logger.Error("failed to initialize app", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *login {
		if err := application.Login(ctx); err != nil {
			logger.Error("login failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if *serve != "" {
		srv := application.HTTPServer(*serve)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		logger.Info("shutting down")
		return
	}

	now := time.Now().UTC()
	defFrom, defTo := application.Window(now)
	toTime := parseEnd(*to, defTo, logger)
	fromTime := parseStart(*from, defFrom, logger)

	if *interval <= 0 {
		if _, err := application.RunOnce(ctx, fromTime, toTime); err != nil {
			logger.Error("sync failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	// Periodic mode for local use; the container deployment schedules
	// run-once invocations externally instead.
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	logger.Info("starting periodic sync", slog.Duration("interval", *interval))
	if _, err := application.RunOnce(ctx, fromTime, toTime); err != nil {
		logger.Error("initial sync failed", slog.String("error", err.Error()))
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			start, end := application.Window(time.Now().UTC())
			if _, err := application.RunOnce(ctx, start, end); err != nil {
				logger.Error("periodic sync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// parseStart parses a start boundary that may be RFC3339 or YYYY-MM-DD.
// If empty, defaultVal is returned.
func parseStart(val string, defaultVal time.Time, log *slog.Logger) time.Time {
	if val == "" {
		return defaultVal
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	// Try date-only in UTC at 00:00
	if d, err := time.Parse("2006-01-02", val); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	log.Error("invalid --from, expected RFC3339 or YYYY-MM-DD")
	os.Exit(1)
	return time.Time{}
}

// parseEnd parses an end boundary that may be RFC3339 or YYYY-MM-DD.
// Date-only form is treated as inclusive by converting to next-day 00:00 UTC.
// If empty, defaultVal is returned.
func parseEnd(val string, defaultVal time.Time, log *slog.Logger) time.Time {
	if val == "" {
		return defaultVal
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.Parse("2006-01-02", val); err == nil {
		next := d.Add(24 * time.Hour)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
	}
	log.Error("invalid --to, expected RFC3339 or YYYY-MM-DD")
	os.Exit(1)
	return time.Time{}
}
