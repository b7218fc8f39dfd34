package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HTTPServer returns a configured http.Server that exposes endpoints to
// trigger syncs manually. Call ListenAndServe on the returned server in a
// goroutine and Shutdown it on exit. The CronJob deployment does not use
// this; it exists for local runs and debugging.
func (a *App) HTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// /sync?from=...&to=...
	// from/to accept RFC3339 or YYYY-MM-DD. If omitted, the configured
	// trailing history window is used.
	mux.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		now := time.Now().UTC()
		defFrom, defTo := a.Window(now)
		toTime := parseTimeParam(q.Get("to"), defTo, true)
		fromTime := parseTimeParam(q.Get("from"), defFrom, false)

		// Optional timeout override: ?timeout=5m
		ctx := r.Context()
		if tStr := q.Get("timeout"); tStr != "" {
			if d, err := time.ParseDuration(tStr); err == nil && d > 0 {
				var cancel func()
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
		}

		res, err := a.RunOnce(ctx, fromTime, toTime)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error",
				"error":  err.Error(),
				"from":   fromTime.Format(time.RFC3339),
				"to":     toTime.Format(time.RFC3339),
			})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"from":    fromTime.Format(time.RFC3339),
			"to":      toTime.Format(time.RFC3339),
			"fetched": res.Fetched,
			"matched": res.Matched,
			"created": res.Created,
			"skipped": res.Skipped,
			"failed":  res.Failed,
		})
	})

	srv := &http.Server{Addr: addr, Handler: loggingMiddleware(a.log, mux)}
	a.log.Info("http trigger server configured", slog.String("addr", addr))
	return srv
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

// parseTimeParam parses a window boundary that may be RFC3339 or
// YYYY-MM-DD. A date-only end boundary is treated as inclusive by moving to
// next-day 00:00 UTC. On empty or invalid input the default is returned.
func parseTimeParam(val string, defaultVal time.Time, endBoundary bool) time.Time {
	if val == "" {
		return defaultVal
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.Parse("2006-01-02", val); err == nil {
		if endBoundary {
			d = d.Add(24 * time.Hour)
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return defaultVal
}
