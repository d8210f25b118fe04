package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quenishay-arch/traceloom2/internal/metrics"
	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/stage"
	"github.com/quenishay-arch/traceloom2/internal/store"
	"github.com/quenishay-arch/traceloom2/internal/tracker"
)

type server struct {
	tracker *tracker.Tracker
	metrics *metrics.Registry
	log     *zap.Logger
}

func newServer(tr *tracker.Tracker, mreg *metrics.Registry, log *zap.Logger) *server {
	return &server{tracker: tr, metrics: mreg, log: log}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/api/pos", s.handleListPOs)
	mux.HandleFunc("/api/pos/", s.handlePO)
	mux.HandleFunc("/api/live/", s.handleLive)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/api/events", s.handleListEvents)
	mux.HandleFunc("/api/alerts", s.handleListAlerts)
	mux.HandleFunc("/api/alerts/", s.handleAlert)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, tracker.ErrNotFound) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

func (s *server) handleListPOs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if num := r.URL.Query().Get("number"); num != "" {
		po, err := s.tracker.FindPurchaseOrderByNumber(num)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"po": po})
		return
	}
	sort := store.SortOrder(r.URL.Query().Get("sort"))
	pos, err := s.tracker.ListPurchaseOrders(sort, limitParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	fleet, err := s.tracker.FleetStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pos": pos, "fleet": fleet})
}

// handlePO serves /api/pos/{id}, /api/pos/{id}/timeline and
// POST /api/pos/{id}/advance.
func (s *server) handlePO(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/pos/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		po, err := s.tracker.GetPurchaseOrder(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		trust, _ := s.tracker.TrustScore(id)
		writeJSON(w, http.StatusOK, map[string]any{"po": po, "trust_score": trust})
	case action == "timeline" && r.Method == http.MethodGet:
		po, err := s.tracker.GetPurchaseOrder(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		items := stage.Timeline(po.Status, po.Timeline)
		writeJSON(w, http.StatusOK, map[string]any{
			"timeline": items,
			"progress": stage.Progress(po.Status),
		})
	case action == "advance" && r.Method == http.MethodPost:
		po, err := s.tracker.AdvanceStage(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"po": po})
	case action == "insight" && r.Method == http.MethodPost:
		var body struct {
			Stage string `json:"stage"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Stage == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stage required"})
			return
		}
		text, err := s.tracker.AttachInsight(r.Context(), id, model.Stage(body.Stage))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"insight": text})
	default:
		http.NotFound(w, r)
	}
}

func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subject := strings.TrimPrefix(r.URL.Path, "/api/live/")
	if subject == "" || strings.Contains(subject, "/") {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.LiveMetrics(subject))
}

func (s *server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.tracker.RecentActivity(limitParam(r))})
}

func (s *server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f := store.EventFilter{
		POID:       r.URL.Query().Get("po_id"),
		MetricType: model.MetricType(r.URL.Query().Get("metric_type")),
	}
	evs, err := s.tracker.ListIoTEvents(f, limitParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	alerts, err := s.tracker.ListAlerts(limitParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// handleAlert serves POST /api/alerts/{id}/read.
func (s *server) handleAlert(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action != "read" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.tracker.AcknowledgeAlert(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
