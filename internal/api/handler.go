package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/ingest"
	"github.com/opensource-finance/rastreador/internal/repository"
	"github.com/opensource-finance/rastreador/internal/rules"
	"github.com/opensource-finance/rastreador/internal/service"
)

// defaultMaxUploadMB applies when the server config sets no upload limit.
const defaultMaxUploadMB = 64

// Handler holds dependencies for API handlers.
type Handler struct {
	svc            *service.Service
	repo           domain.Repository
	cache          domain.Cache
	analysis       domain.AnalysisConfig
	maxUploadBytes int64
	version        string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, repo domain.Repository, cache domain.Cache, analysisCfg domain.AnalysisConfig, maxUploadMB int, version string) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	return &Handler{
		svc:            svc,
		repo:           repo,
		cache:          cache,
		analysis:       analysisCfg,
		maxUploadBytes: int64(maxUploadMB) << 20,
		version:        version,
	}
}

// UploadResponse is the response for dataset uploads.
type UploadResponse struct {
	Dataset *domain.Dataset `json:"dataset"`
	Skipped []SkippedFile   `json:"skipped,omitempty"`
}

// SkippedFile names an uploaded file that could not be read.
type SkippedFile struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// UploadContributions handles POST /datasets/contributions. The multipart
// field "file" carries one CSV or XLSX file; ?sheet= overrides the
// configured worksheet name.
func (h *Handler) UploadContributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)

	if !h.parseUpload(w, r) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart field \"file\" is required",
		})
		return
	}
	defer file.Close()

	table, err := ingest.Read(file, header.Filename, h.sheet(r, h.analysis.ContributionsSheet))
	if err != nil {
		writeError(w, r, fmt.Errorf("%s: %w", header.Filename, err))
		return
	}

	ds, err := h.svc.LoadContributions(ctx, workspaceID, table)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Dataset: ds})
}

// UploadContracts handles POST /datasets/contracts. Every file in the
// multipart field "files" becomes one contracts table. Unreadable files are
// skipped and reported.
func (h *Handler) UploadContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := GetWorkspaceID(ctx)

	if !h.parseUpload(w, r) {
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart field \"files\" is required",
		})
		return
	}

	sheet := h.sheet(r, h.analysis.ContractsSheet)
	var tables []domain.Table
	var skipped []SkippedFile
	for _, fh := range headers {
		table, err := readPart(fh, sheet)
		if err != nil {
			slog.Warn("skipping contracts file",
				"workspace_id", workspaceID,
				"file", fh.Filename,
				"error", err,
			)
			skipped = append(skipped, SkippedFile{File: fh.Filename, Error: err.Error()})
			continue
		}
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "no readable contracts file",
			"skipped": skipped,
		})
		return
	}

	ds, err := h.svc.LoadContracts(ctx, workspaceID, tables)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Dataset: ds, Skipped: skipped})
}

// ListDatasets handles GET /datasets.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasets, err := h.svc.Datasets(ctx, GetWorkspaceID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if datasets == nil {
		datasets = []*domain.Dataset{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": datasets,
	})
}

// ListParties handles GET /parties.
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parties, err := h.svc.Parties(ctx, GetWorkspaceID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"parties": parties,
	})
}

// Analyze handles POST /analyses. An empty body runs with the configured
// defaults.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var params domain.AnalysisParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	run, err := h.svc.Analyze(ctx, GetWorkspaceID(ctx), params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

// ListAnalyses handles GET /analyses?limit=.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.svc.Runs(ctx, GetWorkspaceID(ctx), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*domain.AnalysisRun{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": runs,
	})
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	run, err := h.svc.Run(ctx, GetWorkspaceID(ctx), runID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ExportAlerts handles GET /alerts.csv?window=&party=&filter=.
func (h *Handler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := paramsFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Buffered so analysis errors can still be reported as JSON.
	var buf bytes.Buffer
	name, err := h.svc.ExportCSV(ctx, GetWorkspaceID(ctx), params, &buf)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write alerts csv", "error", err)
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			slog.Warn("repository ping failed", "error", err)
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			slog.Warn("cache ping failed", "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart form data is required",
		})
		return false
	}
	return true
}

func (h *Handler) sheet(r *http.Request, fallback string) string {
	if v := r.URL.Query().Get("sheet"); v != "" {
		return v
	}
	return fallback
}

func readPart(fh *multipart.FileHeader, sheet string) (domain.Table, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()
	return ingest.Read(f, fh.Filename, sheet)
}

func paramsFromQuery(r *http.Request) (domain.AnalysisParams, error) {
	q := r.URL.Query()
	params := domain.AnalysisParams{
		PartyFilter: q.Get("party"),
		Filter:      q.Get("filter"),
	}
	if v := q.Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("window must be an integer")
		}
		params.WindowMonths = n
	}
	return params, nil
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var missing *domain.MissingColumnError

	switch {
	case errors.Is(err, service.ErrWorkspaceRequired),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, rules.ErrInvalidExpression),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrEmptyTable),
		errors.Is(err, ingest.ErrUnreadable),
		errors.Is(err, repository.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.As(err, &missing), errors.Is(err, service.ErrNoUsableTables):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDatasetMissing):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"workspace_id", GetWorkspaceID(r.Context()),
			"error", err,
		)
		writeJSON(w, status, map[string]string{
			"error": "internal server error",
		})
		return
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
