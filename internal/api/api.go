// Package api exposes the aggregate layer read-only over HTTP. The external
// rendering collaborators use it to list the months present and to pull one
// month's ranked totals; nothing here ever writes to the lake.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// AggregateSource supplies the aggregate layer. *lake.Lake satisfies it;
// reading per request keeps the API fresh across pipeline reruns.
type AggregateSource interface {
	ReadAggregates() ([]model.MonthlyAggregate, error)
}

// Server serves the aggregate layer.
type Server struct {
	source AggregateSource
}

// NewServer builds a Server reading from source.
func NewServer(source AggregateSource) *Server {
	return &Server{source: source}
}

// Router builds the HTTP routes: a health probe plus the two read-only
// aggregate endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/months", s.handleMonths)
	r.Get("/api/constructors/monthly", s.handleMonthly)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMonths returns the distinct months present in the aggregate layer,
// ascending. The renderer turns this into its month selector.
func (s *Server) handleMonths(w http.ResponseWriter, _ *http.Request) {
	rows, err := s.source.ReadAggregates()
	if err != nil {
		serveError(w, err)
		return
	}

	seen := make(map[string]struct{}, len(rows))
	months := make([]string, 0, len(rows))
	for _, row := range rows {
		m := model.FormatMonth(row.Month)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		months = append(months, m)
	}
	sort.Strings(months)

	writeJSON(w, http.StatusOK, map[string]any{"months": months})
}

// monthlyRow is the wire form of one aggregate row. Months travel as their
// stored YYYY-MM-01 label, not a timestamp.
type monthlyRow struct {
	ConstructorID   int64    `json:"constructor_id"`
	ConstructorName string   `json:"constructor_name"`
	Month           string   `json:"m"`
	PointsTotal     float64  `json:"points_m"`
	MoMGrowth       *float64 `json:"mom_growth"`
}

// handleMonthly returns one month's rows ranked by points_m descending,
// optionally cut to the top N. Equal totals rank by constructor_id so the
// order is deterministic.
func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	month, err := model.ParseMonth(r.URL.Query().Get("m"))
	if err != nil || !model.FirstOfMonth(month) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter m must be a YYYY-MM-01 month"})
		return
	}

	top := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		top, err = strconv.Atoi(raw)
		if err != nil || top < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter top must be a positive integer"})
			return
		}
	}

	rows, err := s.source.ReadAggregates()
	if err != nil {
		serveError(w, err)
		return
	}

	out := make([]monthlyRow, 0)
	for _, row := range rows {
		if !row.Month.Equal(month) {
			continue
		}
		out = append(out, monthlyRow{
			ConstructorID:   row.ConstructorID,
			ConstructorName: row.ConstructorName,
			Month:           model.FormatMonth(row.Month),
			PointsTotal:     row.PointsTotal,
			MoMGrowth:       row.MoMGrowth,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsTotal != out[j].PointsTotal {
			return out[i].PointsTotal > out[j].PointsTotal
		}
		return out[i].ConstructorID < out[j].ConstructorID
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"m":    model.FormatMonth(month),
		"rows": out,
	})
}

func serveError(w http.ResponseWriter, err error) {
	zap.L().Error("read aggregate layer", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "aggregate layer unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
