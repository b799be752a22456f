package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/nlflow/nlparse"
	"github.com/GoCodeAlone/nlflow/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubParser returns a fixed result and records the last call.
type stubParser struct {
	res           nlparse.Result
	err           error
	lastAvailable []string
	calls         int
}

func (s *stubParser) ParseWithOutcome(_ context.Context, _ string, available []string) (nlparse.Result, error) {
	s.calls++
	s.lastAvailable = available
	return s.res, s.err
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Save(context.Context, *store.Record) error { return errors.New("db down") }
func (failingStore) Get(context.Context, uuid.UUID) (*store.Record, error) {
	return nil, errors.New("db down")
}
func (failingStore) List(context.Context, store.ListFilter) ([]*store.Record, error) {
	return nil, errors.New("db down")
}
func (failingStore) Count(context.Context, store.ListFilter) (int, error) {
	return 0, errors.New("db down")
}
func (failingStore) Delete(context.Context, uuid.UUID) error { return errors.New("db down") }

func makeJSON(v any) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error
}

func newRealHandler(workflows store.WorkflowStore) *WorkflowHandler {
	p := nlparse.NewParser(nlparse.ParserConfig{Logger: quietLogger()})
	return NewWorkflowHandler(p, workflows, quietLogger(), 0)
}

func TestWorkflowParse(t *testing.T) {
	h := newRealHandler(store.NewMemoryStore())

	t.Run("pattern result", func(t *testing.T) {
		body := makeJSON(map[string]any{"instruction": "Send an email to a@b.com then post to slack #dev"})
		req := httptest.NewRequest("POST", "/api/workflows/parse", body)
		rr := httptest.NewRecorder()
		h.Parse(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp parseResponse
		decodeData(t, rr, &resp)
		if resp.Outcome != nlparse.OutcomePattern {
			t.Errorf("expected pattern outcome, got %q", resp.Outcome)
		}
		if resp.ID != nil {
			t.Error("expected no id when save is false")
		}
		if resp.Workflow == nil || len(resp.Workflow.Steps) != 2 {
			t.Fatalf("expected 2 steps, got %+v", resp.Workflow)
		}
	})

	t.Run("degraded without model", func(t *testing.T) {
		body := makeJSON(map[string]any{"instruction": "banana banana"})
		req := httptest.NewRequest("POST", "/api/workflows/parse", body)
		rr := httptest.NewRecorder()
		h.Parse(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp parseResponse
		decodeData(t, rr, &resp)
		if resp.Outcome != nlparse.OutcomeDegraded {
			t.Errorf("expected degraded outcome, got %q", resp.Outcome)
		}
		if resp.Workflow == nil || len(resp.Workflow.Steps) != 0 {
			t.Errorf("expected empty workflow, got %+v", resp.Workflow)
		}
	})

	t.Run("missing instruction", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/workflows/parse", makeJSON(map[string]any{"instruction": "   "}))
		rr := httptest.NewRecorder()
		h.Parse(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if msg := decodeError(t, rr); msg != "instruction is required" {
			t.Errorf("unexpected error %q", msg)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/workflows/parse", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		h.Parse(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}

func TestWorkflowParse_BodyTooLarge(t *testing.T) {
	p := nlparse.NewParser(nlparse.ParserConfig{Logger: quietLogger()})
	h := NewWorkflowHandler(p, nil, quietLogger(), 32)
	body := makeJSON(map[string]any{"instruction": strings.Repeat("send an email ", 20)})
	req := httptest.NewRequest("POST", "/api/workflows/parse", body)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestWorkflowParse_PassesAvailableApps(t *testing.T) {
	sp := &stubParser{res: nlparse.Result{
		Outcome:  nlparse.OutcomeModel,
		Workflow: &nlparse.ParsedWorkflow{Name: "x", Steps: []nlparse.Step{}, RequiredApps: []string{}},
	}}
	h := NewWorkflowHandler(sp, nil, quietLogger(), 0)
	body := makeJSON(map[string]any{"instruction": "do it", "availableApps": []string{"notion", "trello"}})
	rr := httptest.NewRecorder()
	h.Parse(rr, httptest.NewRequest("POST", "/api/workflows/parse", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(sp.lastAvailable) != 2 || sp.lastAvailable[0] != "notion" {
		t.Errorf("available apps not passed through: %v", sp.lastAvailable)
	}
}

func TestWorkflowParse_Errors(t *testing.T) {
	tests := []struct {
		name       string
		parser     *stubParser
		workflows  store.WorkflowStore
		save       bool
		wantStatus int
	}{
		{
			name:       "invariant failure",
			parser:     &stubParser{err: &nlparse.InvariantError{}},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "empty instruction from parser",
			parser:     &stubParser{err: nlparse.ErrEmptyInstruction},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "save without store",
			parser:     &stubParser{},
			save:       true,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "save fails",
			parser: &stubParser{res: nlparse.Result{
				Outcome:  nlparse.OutcomePattern,
				Workflow: &nlparse.ParsedWorkflow{Steps: []nlparse.Step{}, RequiredApps: []string{}},
			}},
			workflows:  failingStore{},
			save:       true,
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWorkflowHandler(tt.parser, tt.workflows, quietLogger(), 0)
			body := makeJSON(map[string]any{"instruction": "x", "save": tt.save})
			rr := httptest.NewRecorder()
			h.Parse(rr, httptest.NewRequest("POST", "/api/workflows/parse", body))
			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestWorkflowSaveAndGet(t *testing.T) {
	workflows := store.NewMemoryStore()
	h := newRealHandler(workflows)

	body := makeJSON(map[string]any{"instruction": "create a github issue title: Crash", "save": true})
	rr := httptest.NewRecorder()
	h.Parse(rr, httptest.NewRequest("POST", "/api/workflows/parse", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created parseResponse
	decodeData(t, rr, &created)
	if created.ID == nil {
		t.Fatal("expected id in response")
	}

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/workflows/"+created.ID.String(), nil)
		req.SetPathValue("id", created.ID.String())
		rr := httptest.NewRecorder()
		h.Get(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var rec store.Record
		decodeData(t, rr, &rec)
		if rec.ID != *created.ID || rec.Outcome != nlparse.OutcomePattern {
			t.Errorf("unexpected record %+v", rec)
		}
		if rec.Workflow == nil || rec.Workflow.Steps[0].App != "github" {
			t.Errorf("unexpected workflow %+v", rec.Workflow)
		}
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		req := httptest.NewRequest("GET", "/api/workflows/"+id, nil)
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		h.Get(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/workflows/nope", nil)
		req.SetPathValue("id", "nope")
		rr := httptest.NewRecorder()
		h.Get(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}

func TestWorkflowGet_StoreError(t *testing.T) {
	h := NewWorkflowHandler(&stubParser{}, failingStore{}, quietLogger(), 0)
	id := uuid.New().String()
	req := httptest.NewRequest("GET", "/api/workflows/"+id, nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestWorkflowList(t *testing.T) {
	workflows := store.NewMemoryStore()
	h := newRealHandler(workflows)
	for _, in := range []string{"send an email to a@b.com", "post to slack #dev", "banana"} {
		rr := httptest.NewRecorder()
		h.Parse(rr, httptest.NewRequest("POST", "/api/workflows/parse", makeJSON(map[string]any{"instruction": in, "save": true})))
		if rr.Code != http.StatusCreated {
			t.Fatalf("save %q: got %d", in, rr.Code)
		}
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
		wantTotal  int
	}{
		{"all", "", http.StatusOK, 3, 3},
		{"by outcome", "?outcome=degraded", http.StatusOK, 1, 1},
		{"by app", "?app=slack", http.StatusOK, 1, 1},
		{"limit", "?limit=2", http.StatusOK, 2, 3},
		{"offset", "?offset=2", http.StatusOK, 1, 3},
		{"offset past end", "?offset=5", http.StatusOK, 0, 3},
		{"bad outcome", "?outcome=guess", http.StatusBadRequest, 0, 0},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0, 0},
		{"bad offset", "?offset=-1", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.List(rr, httptest.NewRequest("GET", "/api/workflows"+tt.query, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var page struct {
				Data  []store.Record `json:"data"`
				Count int            `json:"count"`
				Total int            `json:"total"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
				t.Fatal(err)
			}
			if page.Count != tt.wantCount || len(page.Data) != tt.wantCount {
				t.Errorf("expected %d records, got count=%d len=%d", tt.wantCount, page.Count, len(page.Data))
			}
			if page.Total != tt.wantTotal {
				t.Errorf("expected total %d, got %d", tt.wantTotal, page.Total)
			}
		})
	}
}

func TestWorkflowList_StoreError(t *testing.T) {
	h := NewWorkflowHandler(&stubParser{}, failingStore{}, quietLogger(), 0)
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest("GET", "/api/workflows", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
