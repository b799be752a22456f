// Package store persists parsed workflows so they can be listed and fetched
// after the request that produced them.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/nlflow/nlparse"
)

// Record is one saved parse result.
type Record struct {
	ID          uuid.UUID               `json:"id"`
	Instruction string                  `json:"instruction"`
	Outcome     nlparse.Outcome         `json:"outcome"`
	Workflow    *nlparse.ParsedWorkflow `json:"workflow"`
	CreatedAt   time.Time               `json:"createdAt"`
}

// Pagination controls list offsets and page size.
type Pagination struct {
	Offset int
	Limit  int
}

// DefaultPagination returns a Pagination with sensible defaults.
func DefaultPagination() Pagination {
	return Pagination{Offset: 0, Limit: 50}
}

// ListFilter narrows a List call. A zero filter lists everything, newest
// first.
type ListFilter struct {
	Outcome    nlparse.Outcome
	App        string
	Pagination Pagination
}

// WorkflowStore defines persistence operations for parsed workflows.
type WorkflowStore interface {
	// Save assigns an ID and creation time when they are unset and stores r.
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, f ListFilter) ([]*Record, error)
	// Count returns how many records match f, ignoring its pagination.
	Count(ctx context.Context, f ListFilter) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

func limitOrDefault(p Pagination) int {
	if p.Limit <= 0 {
		return DefaultPagination().Limit
	}
	return p.Limit
}

func matches(r *Record, f ListFilter) bool {
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	return f.App == "" || hasApp(r.Workflow, f.App)
}

func hasApp(wf *nlparse.ParsedWorkflow, app string) bool {
	if wf == nil {
		return false
	}
	for _, a := range wf.RequiredApps {
		if a == app {
			return true
		}
	}
	return false
}
