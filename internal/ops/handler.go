package ops

import (
	"context"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pockettodo/internal/reminder"
	rtsup "pockettodo/internal/runtime/supervisor"
	logx "pockettodo/pkg/logx"
)

// Scanner is the part of the reminder scanner the endpoint reads and triggers.
type Scanner interface {
	Snapshot() reminder.ScannerSnapshot
	ScanOnce(ctx context.Context) (reminder.ScanReport, bool)
}

// Sources feed /status. Nil fields are omitted from the output.
type Sources struct {
	Scanner     Scanner
	Supervisors func() map[string]rtsup.Counters
	Started     time.Time
	Version     string
}

// Status is the /status document.
type Status struct {
	Time        time.Time                 `json:"time"`
	Uptime      string                    `json:"uptime"`
	Version     string                    `json:"version,omitempty"`
	Scanner     *reminder.ScannerSnapshot `json:"scanner,omitempty"`
	Supervisors map[string]rtsup.Counters `json:"supervisors,omitempty"`
}

// Handler builds the ops router. token, when set, guards every route.
func Handler(src Sources, token string, pprof bool, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLog(log), middleware.Recoverer)
	r.Use(bearerAuth(token))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if src.Scanner == nil || src.Scanner.Snapshot().Schedule == "" {
			http.Error(w, "scanner not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		st := Status{Time: now, Version: src.Version}
		if !src.Started.IsZero() {
			st.Uptime = now.Sub(src.Started).Round(time.Second).String()
		}
		if src.Scanner != nil {
			snap := src.Scanner.Snapshot()
			st.Scanner = &snap
		}
		if src.Supervisors != nil {
			st.Supervisors = src.Supervisors()
		}
		writeJSON(w, http.StatusOK, st)
	})

	// POST /scan runs one scan now; 409 when a scan is already running.
	r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
		if src.Scanner == nil {
			http.Error(w, "scanner not running", http.StatusServiceUnavailable)
			return
		}
		rep, ok := src.Scanner.ScanOnce(r.Context())
		if !ok {
			http.Error(w, "scan already running", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	if pprof {
		r.HandleFunc("/debug/pprof/", hpprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", hpprof.Trace)
		r.Handle("/debug/pprof/{name}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hpprof.Handler(chi.URLParam(r, "name")).ServeHTTP(w, r)
		}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLog is middleware.Logger routed into logx.
func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("ops request",
				logx.String("req_id", middleware.GetReqID(r.Context())),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("dur", time.Since(start)),
			)
		})
	}
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
