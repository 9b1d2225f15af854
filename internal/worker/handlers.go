package worker

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/orion/internal/db/gorm"
	"github.com/thebtf/orion/internal/layout"
	"github.com/thebtf/orion/internal/orchestrator"
	"github.com/thebtf/orion/internal/visualize"
)

// DefaultJobListLimit caps GET /api/projects/{id}/jobs without ?limit.
const DefaultJobListLimit = 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	resp := map[string]interface{}{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"clients": s.sseBroadcaster.ClientCount(),
	}
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			resp["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// clusteringRequest is the optional body of POST /clustering.
type clusteringRequest struct {
	Algorithm     string `json:"algorithm"`
	Method        string `json:"method"`
	MaxIterations int    `json:"maxIterations"`
}

func (s *Service) handleSubmitClustering(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req clusteringRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.MaxIterations < 0 {
		writeError(w, http.StatusBadRequest, "maxIterations must not be negative")
		return
	}
	params := orchestrator.Params{
		Algorithm:     req.Algorithm,
		Method:        req.Method,
		MaxIterations: req.MaxIterations,
	}
	if params.Algorithm == "" && s.config != nil {
		params.Algorithm = s.config.Clustering.Algorithm
	}

	job, err := s.runner.Submit(r.Context(), projectID, params)
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID).Msg("Failed to submit clustering job")
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	limit := gormdb.ParseLimitParam(r, DefaultJobListLimit)
	jobs, err := s.jobs.ListJobs(r.Context(), projectID, limit)
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID).Msg("Failed to list jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

func (s *Service) handleView(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	view, err := visualize.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	opts, err := parseViewOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.views.Render(r.Context(), view, projectID, opts)
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID).Str("view", string(view)).Msg("Failed to render view")
		writeError(w, http.StatusInternalServerError, "failed to render "+string(view))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseViewOptions reads ?curated=&layout3d=&method=. Curated defaults to true.
func parseViewOptions(r *http.Request) (layout.ViewOptions, error) {
	q := r.URL.Query()
	opts := layout.ViewOptions{CuratedOnly: true, Method: q.Get("method")}
	var err error
	if v := q.Get("curated"); v != "" {
		if opts.CuratedOnly, err = strconv.ParseBool(v); err != nil {
			return opts, errors.New("curated must be a boolean")
		}
	}
	if v := q.Get("layout3d"); v != "" {
		if opts.Layout3D, err = strconv.ParseBool(v); err != nil {
			return opts, errors.New("layout3d must be a boolean")
		}
	}
	return opts, nil
}
