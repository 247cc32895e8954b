package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	w *worker
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newWorkerRouter(opts workerHTTPOpts) chi.Router {
	wk := opts.w
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", wk.metrics.Handler())

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"supervisor":   wk.supervisor.Stats(),
			"host":         wk.host.Stats(),
			"lastRun":      wk.coordinator.LastResult(),
			"items":        wk.list.Len(),
			"inboxSession": wk.session.HasSession(),
		})
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		cfg := wk.cfg
		// без секретов: только рабочие настройки
		writeJSON(w, http.StatusOK, map[string]any{
			"storageDriver":       cfg.Storage.Driver,
			"trackingMode":        cfg.Tracking.Mode,
			"cacheTTLSeconds":     cfg.Tracking.CacheTTLSeconds,
			"rateLimitPerMinute":  cfg.Tracking.RateLimitPerMinute,
			"staleAfterMinutes":   cfg.Tracking.StaleAfterMinutes,
			"inboxQuery":          cfg.Inbox.Query,
			"inboxMaxPages":       cfg.Inbox.MaxPages,
			"grantWindowSeconds":  cfg.ReturnBox.GrantWindowSeconds,
			"safetyMarginSeconds": cfg.ReturnBox.SafetyMarginSeconds,
			"intervalMinSeconds":  cfg.ReturnBox.IntervalMinSeconds,
			"intervalMaxSeconds":  cfg.ReturnBox.IntervalMaxSeconds,
			"alertsTopic":         cfg.Kafka.AlertsTopicName,
			"redisEnabled":        cfg.Redis.Addr() != "",
			"redisSeenSet":        cfg.Redis.UseForSeen,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if err := wk.host.Trigger(wk.supervisor.JobID()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, wk.list.Snapshot())
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var it models.TrackedItem
			if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
				writeError(w, http.StatusBadRequest, "invalid item json")
				return
			}
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			if it.CreatedAt.IsZero() {
				it.CreatedAt = time.Now().UTC()
			}
			if it.RefundStatus == "" {
				it.RefundStatus = models.RefundStatusPending
			}
			wk.list.Upsert(it)
			if err := wk.list.Flush(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, it)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			it, ok := wk.list.Get(chi.URLParam(r, "id"))
			if !ok {
				writeError(w, http.StatusNotFound, "item not found")
				return
			}
			writeJSON(w, http.StatusOK, it)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if !wk.list.Delete(chi.URLParam(r, "id")) {
				writeError(w, http.StatusNotFound, "item not found")
				return
			}
			if err := wk.list.Flush(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Route("/candidates", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			cs, err := wk.store.ListCandidates(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if cs == nil {
				cs = []models.CandidateReturn{}
			}
			writeJSON(w, http.StatusOK, cs)
		})
		r.Delete("/{messageID}", func(w http.ResponseWriter, r *http.Request) {
			if err := wk.store.DismissCandidate(r.Context(), chi.URLParam(r, "messageID")); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Get("/hidden", func(w http.ResponseWriter, r *http.Request) {
		ids, err := wk.seen.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(ids), "messageIds": ids})
	})

	if opts.swaggerPath != "" {
		// Serve swagger with no-cache + cachebuster.
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}
	slog.Info("admin http listening", "addr", lis.Addr().String())

	srv := &http.Server{Handler: newWorkerRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
