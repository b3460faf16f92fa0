// Package api exposes the review workflow over HTTP: session intake from the
// extractor, edit and approval endpoints for the reviewing analyst, and
// workbook export.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/spread-cli/internal/calc"
	"github.com/sells-group/spread-cli/internal/export"
	"github.com/sells-group/spread-cli/internal/session"
	"github.com/sells-group/spread-cli/internal/store"
)

// Server handles the review API. All endpoints are synchronous; recomputation
// is cheap enough to run inline on every mutating request.
type Server struct {
	store    store.Store
	engine   calc.Engine
	validate *validator.Validate
}

// NewServer creates a Server around a store and calculation engine.
func NewServer(st store.Store, engine calc.Engine) *Server {
	return &Server{
		store:    st,
		engine:   engine,
		validate: validator.New(),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.Health)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Post("/edits", s.ApplyEdits)
			r.Post("/recompute", s.Recompute)
			r.Post("/approve", s.Approve)
			r.Get("/export", s.Export)
		})
	})

	return r
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionResponse pairs a session with the results recomputed from its
// current resolved values.
type sessionResponse struct {
	Session *session.Session `json:"session"`
	Results *calc.Results    `json:"results"`
}

// CreateSession ingests an extraction result and opens a review session.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.ExtractionResult
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sess, err := session.FromExtraction(req)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.PutSession(r.Context(), sess); err != nil {
		s.internalError(w, err, "create session")
		return
	}

	zap.L().Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("ticker", sess.Ticker),
		zap.Int("raw_values", len(sess.Raw)),
	)
	respondJSON(w, http.StatusCreated, sessionResponse{
		Session: sess,
		Results: s.engine.Recompute(sess),
	})
}

// ListSessions returns session summaries, optionally filtered.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{Ticker: r.URL.Query().Get("ticker")}
	if v := r.URL.Query().Get("approved"); v != "" {
		approved, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "approved must be a boolean")
			return
		}
		filter.Approved = &approved
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	infos, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.internalError(w, err, "list sessions")
		return
	}
	if infos == nil {
		infos = []store.SessionInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

// GetSession returns one session with freshly recomputed results.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{
		Session: sess,
		Results: s.engine.Recompute(sess),
	})
}

// editRequest is the payload for edit and approve endpoints.
type editRequest struct {
	Edits []session.Edit `json:"edits" validate:"omitempty,dive"`
}

// ApplyEdits applies a batch of overlay corrections and returns the
// recomputed results. The batch stops at the first invalid edit.
func (s *Server) ApplyEdits(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(req.Edits) == 0 {
		respondError(w, http.StatusBadRequest, "no edits provided")
		return
	}

	if err := sess.ApplyEdits(req.Edits); err != nil {
		respondError(w, editStatus(err), err.Error())
		return
	}
	if err := s.store.UpdateSession(r.Context(), sess); err != nil {
		s.internalError(w, err, "persist edits")
		return
	}

	zap.L().Info("edits applied",
		zap.String("session_id", sess.ID),
		zap.Int("edits", len(req.Edits)),
		zap.Int("overrides", sess.Overlay.Len()),
	)
	respondJSON(w, http.StatusOK, sessionResponse{
		Session: sess,
		Results: s.engine.Recompute(sess),
	})
}

// Recompute re-derives all metrics, ratios, and checks without mutating the
// session. Idempotent by construction.
func (s *Server) Recompute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Recompute(sess))
}

// Approve optionally applies a final batch of edits, then freezes the
// overlay into a snapshot together with the results computed from it.
func (s *Server) Approve(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if sess.Approved {
		respondError(w, http.StatusConflict, "session already approved")
		return
	}

	var req editRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if len(req.Edits) > 0 {
		if err := sess.ApplyEdits(req.Edits); err != nil {
			respondError(w, editStatus(err), err.Error())
			return
		}
	}

	results := s.engine.Recompute(sess)
	snap := &store.Snapshot{
		SessionID: sess.ID,
		Overlay:   sess.Approve(time.Now()),
		Results:   results,
	}

	if err := s.store.UpdateSession(r.Context(), sess); err != nil {
		s.internalError(w, err, "persist approval")
		return
	}
	if err := s.store.SaveSnapshot(r.Context(), snap); err != nil {
		s.internalError(w, err, "save snapshot")
		return
	}

	zap.L().Info("session approved",
		zap.String("session_id", sess.ID),
		zap.String("snapshot_id", snap.ID),
		zap.Int("overrides", len(snap.Overlay)),
		zap.Int("failed_checks", results.Verification.FailCount()),
	)
	respondJSON(w, http.StatusOK, snap)
}

// Export streams the session workbook.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	f, err := export.Workbook(sess, s.engine.Recompute(sess))
	if err != nil {
		s.internalError(w, err, "build workbook")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(sess)+`"`)
	if err := f.Write(w); err != nil {
		zap.L().Error("write workbook", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// helpers

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
		} else {
			s.internalError(w, err, "load session")
		}
		return nil, false
	}
	return sess, true
}

func (s *Server) internalError(w http.ResponseWriter, err error, action string) {
	zap.L().Error(action, zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

// editStatus maps edit rejections to HTTP statuses.
func editStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownMetric):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotEditable):
		return http.StatusForbidden
	case errors.Is(err, session.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request with latency and status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
