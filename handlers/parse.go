package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"docparser/dto"
	"docparser/fetch"
	"docparser/middleware"
	"docparser/models"
	"docparser/parser"
	"docparser/tracker"
	"docparser/validation"
)

// ParseService is the tracker surface the handlers depend on.
type ParseService interface {
	Submit(ctx context.Context, doc parser.Document, opts models.ParseOptions) (string, error)
	Get(ctx context.Context, taskID string) (*models.ParseTask, error)
	ParseSync(ctx context.Context, doc parser.Document, opts models.ParseOptions) (*models.ParseResult, error)
}

type ParseHandler struct {
	service     ParseService
	fetcher     *fetch.Fetcher
	maxFileSize int64
	logger      *zap.Logger
}

func NewParseHandler(service ParseService, fetcher *fetch.Fetcher, maxFileSize int64, logger *zap.Logger) *ParseHandler {
	return &ParseHandler{
		service:     service,
		fetcher:     fetcher,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Parse handles POST /parse: synchronous multipart upload.
func (h *ParseHandler) Parse(w http.ResponseWriter, r *http.Request) {
	doc, opts, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.service.ParseSync(r.Context(), doc, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ParseURL handles POST /parse_url: synchronous parse of a remote file.
func (h *ParseHandler) ParseURL(w http.ResponseWriter, r *http.Request) {
	var req dto.ParseURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.URL == "" {
		h.respondError(w, r, http.StatusBadRequest, "bad_request", "url is required")
		return
	}

	data, filename, err := h.fetcher.Fetch(r.Context(), req.URL, req.Filename)
	if err != nil {
		if errors.Is(err, fetch.ErrFileTooLarge) {
			h.writeError(w, r, err)
			return
		}
		h.logger.Warn("Download failed",
			zap.String("trace_id", middleware.GetTraceID(r.Context())),
			zap.Error(err),
		)
		h.respondError(w, r, http.StatusBadRequest, "download_failed", err.Error())
		return
	}
	if _, err := validation.CheckDocument(data, h.maxFileSize); err != nil {
		h.writeError(w, r, err)
		return
	}

	doc := parser.Document{Filename: filename, Data: data}
	result, err := h.service.ParseSync(r.Context(), doc, optionsFromURLRequest(&req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ParseAsync handles POST /parse_async: registers a task and returns
// its ID without waiting for the parse.
func (h *ParseHandler) ParseAsync(w http.ResponseWriter, r *http.Request) {
	doc, opts, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	taskID, err := h.service.Submit(r.Context(), doc, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Async task created",
		zap.String("trace_id", middleware.GetTraceID(r.Context())),
		zap.String("task_id", taskID),
		zap.String("filename", doc.Filename),
	)

	h.respondJSON(w, http.StatusAccepted, dto.AsyncParseResponse{
		TaskID:  taskID,
		Status:  string(models.StatusPending),
		Message: "Task created successfully",
	})
}

// TaskStatus handles GET /tasks/{task_id}.
func (h *ParseHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		h.respondError(w, r, http.StatusBadRequest, "bad_request", "Task ID is required")
		return
	}

	task, err := h.service.Get(r.Context(), taskID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := dto.TaskStatusResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Progress:  task.Progress,
		Result:    task.Result,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
		UpdatedAt: task.UpdatedAt.Format(time.RFC3339),
	}
	if task.Error != "" {
		resp.Error = &task.Error
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// readUpload pulls the file and options out of a multipart request,
// answering the client itself when anything is off.
func (h *ParseHandler) readUpload(w http.ResponseWriter, r *http.Request) (parser.Document, models.ParseOptions, bool) {
	var doc parser.Document
	var opts models.ParseOptions

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "bad_request", "Failed to parse form")
		return doc, opts, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "bad_request", "Failed to get file")
		return doc, opts, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "read_failed", "Failed to read file")
		return doc, opts, false
	}
	if _, err := validation.CheckDocument(data, h.maxFileSize); err != nil {
		h.writeError(w, r, err)
		return doc, opts, false
	}

	opts, err = optionsFromForm(r)
	if err != nil {
		h.writeError(w, r, err)
		return doc, opts, false
	}

	doc = parser.Document{Filename: header.Filename, Data: data}
	return doc, opts, true
}

func optionsFromForm(r *http.Request) (models.ParseOptions, error) {
	opts := models.DefaultParseOptions()

	if v := r.FormValue("backend"); v != "" {
		opts.Backend = models.Backend(v)
	}
	if v := r.FormValue("max_pages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: max_pages must be an integer", models.ErrInvalidOptions)
		}
		opts.MaxPages = &n
	}
	if v := r.FormValue("table_enable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: table_enable must be a boolean", models.ErrInvalidOptions)
		}
		opts.TableEnable = b
	}
	if v := r.FormValue("formula_enable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: formula_enable must be a boolean", models.ErrInvalidOptions)
		}
		opts.FormulaEnable = b
	}
	if v := r.FormValue("lang"); v != "" {
		opts.Lang = v
	}
	if v := r.FormValue("parse_method"); v != "" {
		opts.ParseMethod = v
	}
	return opts, nil
}

func optionsFromURLRequest(req *dto.ParseURLRequest) models.ParseOptions {
	opts := models.DefaultParseOptions()
	if req.Backend != "" {
		opts.Backend = models.Backend(req.Backend)
	}
	opts.MaxPages = req.MaxPages
	if req.TableEnable != nil {
		opts.TableEnable = *req.TableEnable
	}
	if req.FormulaEnable != nil {
		opts.FormulaEnable = *req.FormulaEnable
	}
	if req.Lang != "" {
		opts.Lang = req.Lang
	}
	if req.ParseMethod != "" {
		opts.ParseMethod = req.ParseMethod
	}
	return opts
}

// writeError maps domain errors onto HTTP status codes.
func (h *ParseHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, models.ErrInvalidOptions):
		status, code = http.StatusBadRequest, "invalid_options"
	case errors.Is(err, validation.ErrInvalidFileType), errors.Is(err, validation.ErrEmptyFile):
		status, code = http.StatusBadRequest, "unsupported_file_type"
	case errors.Is(err, validation.ErrFileTooLarge), errors.Is(err, fetch.ErrFileTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, tracker.ErrTaskNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, tracker.ErrQueueFull):
		status, code = http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, tracker.ErrBusy):
		status, code = http.StatusServiceUnavailable, "busy"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}

	traceID := middleware.GetTraceID(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("trace_id", traceID), zap.Error(err))
	} else {
		h.logger.Warn("Request rejected", zap.String("trace_id", traceID), zap.Error(err))
	}

	h.respondJSON(w, status, dto.ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		TraceID: traceID,
	})
}

func (h *ParseHandler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: middleware.GetTraceID(r.Context()),
	})
}

func (h *ParseHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
