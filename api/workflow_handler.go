package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/nlflow/nlparse"
	"github.com/GoCodeAlone/nlflow/store"
)

// WorkflowParser is the parsing operation the handler depends on.
// *nlparse.Parser implements it.
type WorkflowParser interface {
	ParseWithOutcome(ctx context.Context, instruction string, available []string) (nlparse.Result, error)
}

// WorkflowHandler serves instruction parsing and saved workflow lookups.
type WorkflowHandler struct {
	parser       WorkflowParser
	workflows    store.WorkflowStore
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewWorkflowHandler creates a new WorkflowHandler. A nil store disables
// saving and the lookup endpoints answer 404.
func NewWorkflowHandler(parser WorkflowParser, workflows store.WorkflowStore, logger *slog.Logger, maxBodyBytes int64) *WorkflowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WorkflowHandler{
		parser:       parser,
		workflows:    workflows,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

type parseRequest struct {
	Instruction   string   `json:"instruction"`
	AvailableApps []string `json:"availableApps"`
	Save          bool     `json:"save"`
}

type parseResponse struct {
	ID       *uuid.UUID              `json:"id,omitempty"`
	Outcome  nlparse.Outcome         `json:"outcome"`
	Workflow *nlparse.ParsedWorkflow `json:"workflow"`
}

// Parse handles POST /api/workflows/parse.
func (h *WorkflowHandler) Parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		WriteError(w, http.StatusBadRequest, "instruction is required")
		return
	}
	if req.Save && h.workflows == nil {
		WriteError(w, http.StatusServiceUnavailable, "workflow storage is not configured")
		return
	}

	res, err := h.parser.ParseWithOutcome(r.Context(), req.Instruction, req.AvailableApps)
	if err != nil {
		if errors.Is(err, nlparse.ErrEmptyInstruction) {
			WriteError(w, http.StatusBadRequest, "instruction is required")
			return
		}
		h.logger.Error("Failed to parse instruction", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if res.FallbackErr != nil {
		h.logger.Info("Returning degraded parse result", "reason", res.FallbackErr)
	}

	resp := parseResponse{Outcome: res.Outcome, Workflow: res.Workflow}
	if req.Save {
		rec := &store.Record{
			Instruction: req.Instruction,
			Outcome:     res.Outcome,
			Workflow:    res.Workflow,
		}
		if err := h.workflows.Save(r.Context(), rec); err != nil {
			h.logger.Error("Failed to save parsed workflow", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to save workflow")
			return
		}
		resp.ID = &rec.ID
		WriteJSON(w, http.StatusCreated, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/workflows/{id}.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	if h.workflows == nil {
		WriteError(w, http.StatusNotFound, "workflow not found")
		return
	}

	rec, err := h.workflows.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "workflow not found")
			return
		}
		h.logger.Error("Failed to load workflow", "id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// List handles GET /api/workflows. Supported query parameters are outcome,
// app, limit and offset. The response carries the page length as count and
// the number of matching records as total.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		Outcome:    nlparse.Outcome(q.Get("outcome")),
		App:        q.Get("app"),
		Pagination: store.DefaultPagination(),
	}
	switch f.Outcome {
	case "", nlparse.OutcomePattern, nlparse.OutcomeModel, nlparse.OutcomeDegraded:
	default:
		WriteError(w, http.StatusBadRequest, "invalid outcome")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		f.Pagination.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		f.Pagination.Offset = n
	}

	if h.workflows == nil {
		WriteList(w, []*store.Record{}, 0, 0, f.Pagination.Offset, f.Pagination.Limit)
		return
	}
	records, err := h.workflows.List(r.Context(), f)
	if err != nil {
		h.logger.Error("Failed to list workflows", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []*store.Record{}
	}
	total, err := h.workflows.Count(r.Context(), f)
	if err != nil {
		h.logger.Error("Failed to count workflows", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteList(w, records, len(records), total, f.Pagination.Offset, f.Pagination.Limit)
}
