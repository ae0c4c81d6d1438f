package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/fundgraph"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/session"
)

type handler struct {
	engine   fundgraph.Engine
	sessions *session.Manager
}

func newHandler(e fundgraph.Engine) *handler {
	return &handler{engine: e, sessions: session.NewManager()}
}

// POST /sessions
func (h *handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

// GET /sessions/{id}/history
func (h *handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   sess.Messages(),
	})
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Minute)
	defer cancel()

	var req struct {
		SessionID   string   `json:"session_id,omitempty"`
		Question    string   `json:"question"`
		Model       string   `json:"model,omitempty"`
		Temperature *float64 `json:"temperature,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	var sess *session.History
	if req.SessionID != "" {
		var ok bool
		if sess, ok = h.sessions.Get(req.SessionID); !ok {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
	} else {
		sess = h.sessions.Create()
	}

	var opts []fundgraph.AskOption
	if req.Model != "" {
		opts = append(opts, fundgraph.WithModel(req.Model))
	}
	if req.Temperature != nil && *req.Temperature >= 0 && *req.Temperature <= 2 {
		opts = append(opts, fundgraph.WithTemperature(*req.Temperature))
	}

	resp, err := h.engine.Ask(ctx, sess, req.Question, opts...)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "ask failed"
		if errors.Is(err, fundgraph.ErrLLMUnavailable) {
			status, msg = http.StatusServiceUnavailable, "language model unavailable"
		}
		writeError(w, status, msg)
		logFor(r).Error("ask error", "session", sess.ID, "question", req.Question, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /sparql
func (h *handler) handleSPARQL(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	switch res := h.engine.Run(ctx, req.Query).(type) {
	case *executor.Failure:
		writeError(w, http.StatusBadRequest, res.Error())
	case *executor.Rows:
		writeJSON(w, http.StatusOK, map[string]any{
			"vars":          res.Vars,
			"rows":          res.Rows,
			"total_results": len(res.Rows),
		})
	}
}

// POST /ingest
// Accepts a multipart upload with "companies" and "deals" files, or JSON
// with the two file paths.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var companies, deals string
	var opts []fundgraph.IngestOption

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		tmpDir, err := os.MkdirTemp("", "fundgraph-ingest-")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to process upload")
			logFor(r).Error("creating temp dir", "error", err)
			return
		}
		defer os.RemoveAll(tmpDir)

		if companies, err = saveUpload(r, "companies", tmpDir); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if deals, err = saveUpload(r, "deals", tmpDir); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var req struct {
			Companies      string `json:"companies"`
			Deals          string `json:"deals"`
			CompaniesSheet string `json:"companies_sheet,omitempty"`
			DealsSheet     string `json:"deals_sheet,omitempty"`
			Turtle         string `json:"turtle,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request: expected multipart files or JSON with 'companies' and 'deals'")
			return
		}
		var err error
		if companies, err = existingFile(req.Companies); err != nil {
			writeError(w, http.StatusBadRequest, "companies: "+err.Error())
			return
		}
		if deals, err = existingFile(req.Deals); err != nil {
			writeError(w, http.StatusBadRequest, "deals: "+err.Error())
			return
		}
		if req.CompaniesSheet != "" || req.DealsSheet != "" {
			opts = append(opts, fundgraph.WithSheets(req.CompaniesSheet, req.DealsSheet))
		}
		if req.Turtle != "" {
			opts = append(opts, fundgraph.WithTurtleExport(req.Turtle))
		}
	}

	stats, err := h.engine.Ingest(ctx, companies, deals, opts...)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fundgraph.ErrUnsupportedFormat) || errors.Is(err, fundgraph.ErrGraphEmpty) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, "ingestion failed")
		logFor(r).Error("ingest error", "companies", companies, "deals", deals, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// saveUpload copies the multipart file field into dir and returns its path.
func saveUpload(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", errors.New(field + " file is required")
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal.
	path := filepath.Join(dir, field+"-"+filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return path, nil
}

// existingFile validates that path is a real file (prevents directory
// traversal probing) and returns its absolute form.
func existingFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.New("invalid path")
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", errors.New("path must be an existing file")
	}
	return abs, nil
}

// GET /industries
func (h *handler) handleIndustries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"industries": h.engine.Industries(),
	})
}

// GET /companies/{name}?depth=N
func (h *handler) handleDescribe(w http.ResponseWriter, r *http.Request) {
	depth := 2
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 5 {
			writeError(w, http.StatusBadRequest, "depth must be between 1 and 5")
			return
		}
		depth = n
	}

	hood, err := h.engine.Describe(r.Context(), r.PathValue("name"), depth)
	switch {
	case errors.Is(err, fundgraph.ErrCompanyNotFound):
		writeError(w, http.StatusNotFound, "company not found")
	case errors.Is(err, fundgraph.ErrGraphEmpty):
		writeError(w, http.StatusConflict, "graph is empty; ingest data first")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "describe failed")
		logFor(r).Error("describe error", "company", r.PathValue("name"), "error", err)
	default:
		writeJSON(w, http.StatusOK, hood)
	}
}

// GET /companies/{name}/registry
func (h *handler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Minute)
	defer cancel()

	report, err := h.engine.RegistryReport(ctx, r.PathValue("name"))
	switch {
	case errors.Is(err, fundgraph.ErrCompanyNotFound), errors.Is(err, fundgraph.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fundgraph.ErrLLMUnavailable):
		writeError(w, http.StatusServiceUnavailable, "language model unavailable")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "registry lookup failed")
		logFor(r).Error("registry error", "company", r.PathValue("name"), "error", err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// GET /queries?limit=N
func (h *handler) handleQueries(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := h.engine.RecentQueries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queries")
		logFor(r).Error("list queries error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": entries,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"graph":    h.engine.GraphStats(),
		"sessions": h.sessions.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
