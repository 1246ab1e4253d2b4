// Package api exposes the channel-access engine over HTTP: status and
// stats for dashboards, configuration updates, calibration, and the
// persisted sensing history.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/spectrum.report/internal/config"
	"github.com/banshee-data/spectrum.report/internal/db"
	"github.com/banshee-data/spectrum.report/internal/httputil"
	"github.com/banshee-data/spectrum.report/internal/lbt"
	"github.com/banshee-data/spectrum.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine *lbt.Engine
	db     *db.DB
	runID  string
}

// NewServer creates an API server around the engine. db may be nil when
// event persistence is disabled; the history endpoints then 404.
func NewServer(engine *lbt.Engine, database *db.DB, runID string) *Server {
	return &Server{
		engine: engine,
		db:     database,
		runID:  runID,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/lbt/status", s.showStatus)
	mux.HandleFunc("/lbt/stats", s.showStats)
	mux.HandleFunc("/lbt/stats/reset", s.resetStats)
	mux.HandleFunc("/lbt/config", s.handleConfig)
	mux.HandleFunc("/lbt/energy", s.showEnergy)
	mux.HandleFunc("/lbt/energy/probe", s.probeEnergy)
	mux.HandleFunc("/lbt/decide", s.decide)
	mux.HandleFunc("/lbt/calibrate", s.calibrate)
	mux.HandleFunc("/lbt/calibrate_offset", s.calibrateOffset)
	mux.HandleFunc("/lbt/buffer/reset", s.resetBuffer)
	mux.HandleFunc("/lbt/runs", s.listRuns)
	mux.HandleFunc("/lbt/events", s.listEvents)
	return mux
}

type statusResponse struct {
	Version         string               `json:"version"`
	RunID           string               `json:"run_id,omitempty"`
	Configured      bool                 `json:"configured"`
	Mode            string               `json:"mode,omitempty"`
	Enabled         bool                 `json:"enabled"`
	ThresholdDbm    float64              `json:"ed_threshold_dbm"`
	Calibration     lbt.CalibrationState `json:"calibration"`
	ConsecutiveFree int                  `json:"consecutive_free"`
	BufferLen       int                  `json:"buffer_len"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{
		Version:         version.Version,
		RunID:           s.runID,
		ThresholdDbm:    s.engine.Threshold(),
		Calibration:     s.engine.Calibration(),
		ConsecutiveFree: s.engine.ConsecutiveFree(),
		BufferLen:       s.engine.BufferLen(),
	}
	if cfg, ok := s.engine.Config(); ok {
		resp.Configured = true
		resp.Mode = cfg.Mode.String()
		resp.Enabled = cfg.Enabled
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Stats())
}

func (s *Server) resetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.ResetStats()
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

// handleConfig reports the active configuration on GET and applies a
// partial update on POST: fields absent from the request body keep
// their current values.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, ok := s.engine.Config()
		if !ok {
			httputil.NotFound(w, "engine is not configured")
			return
		}
		httputil.WriteJSONOK(w, config.FromAccessConfig(cfg))

	case http.MethodPost:
		// Seed the update with the active config (or defaults) so a
		// partial body only overrides what it names.
		base := lbt.DefaultConfig()
		if cfg, ok := s.engine.Config(); ok {
			base = cfg
		}
		tc := config.FromAccessConfig(base)
		if err := json.NewDecoder(r.Body).Decode(tc); err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
		if err := tc.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.engine.UpdateConfig(tc.ToAccessConfig()); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		cfg, _ := s.engine.Config()
		httputil.WriteJSONOK(w, config.FromAccessConfig(cfg))

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showEnergy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	fresh := r.URL.Query().Get("fresh") == "1"
	httputil.WriteJSONOK(w, map[string]interface{}{
		"energy_dbm":       s.engine.ReadEnergy(fresh),
		"ed_threshold_dbm": s.engine.Threshold(),
	})
}

// maxProbeReads bounds a probe request: readings are spaced 100ms
// apart, so the cap keeps the handler under ten seconds on a real
// clock.
const maxProbeReads = 100

// probeEnergy takes a short series of forced-fresh readings for manual
// receive-path checks. count defaults to the engine's probe length.
func (s *Server) probeEnergy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	count := 0
	if c := r.URL.Query().Get("count"); c != "" {
		v, err := strconv.Atoi(c)
		if err != nil || v < 1 || v > maxProbeReads {
			httputil.BadRequest(w, "invalid count")
			return
		}
		count = v
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"readings_dbm":     s.engine.ProbeEnergy(count),
		"ed_threshold_dbm": s.engine.Threshold(),
	})
}

// decide runs one channel-access decision. Intended for bench testing;
// the scheduler normally calls the engine in-process.
func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	isPrach := r.URL.Query().Get("prach") == "1"
	granted := s.engine.Decide(isPrach)
	httputil.WriteJSONOK(w, map[string]bool{"granted": granted})
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Reads int `json:"reads"`
	}
	if r.Body != nil {
		// An empty body means "use the default read count"
		json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.engine.Calibrate(req.Reads); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"calibration":      s.engine.Calibration(),
		"ed_threshold_dbm": s.engine.Threshold(),
	})
}

func (s *Server) calibrateOffset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		ReferenceDbm *float64 `json:"reference_dbm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReferenceDbm == nil {
		httputil.BadRequest(w, "body must provide reference_dbm")
		return
	}
	if err := s.engine.CalibrateOffset(*req.ReferenceDbm); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"calibration": s.engine.Calibration()})
}

func (s *Server) resetBuffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.ResetBuffer()
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "event persistence is disabled")
		return
	}
	runs, err := s.db.Runs()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "event persistence is disabled")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = s.runID
	}
	if runID == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}

	limit := 1000
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = v
	}

	events, err := s.db.SensingEvents(runID, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, events)
}
