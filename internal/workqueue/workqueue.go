// Package workqueue is a thin facade over a store.Store that yields
// candidate documents for a given work type and arbitrates claims between
// concurrent workers.
package workqueue

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

// Queue selects and arbitrates work over a fixed work_type.
type Queue struct {
	st       store.Store
	workType string
}

func New(st store.Store, workType string) *Queue {
	return &Queue{st: st, workType: workType}
}

func (q *Queue) Count(ctx context.Context, filter model.WorkFilter) (uint64, error) {
	filter.WorkType = q.workType
	return q.st.CountNeedingAnalysis(ctx, filter)
}

// FetchBatch returns up to limit documents ordered by id, so cursor=last.ID
// advances monotonically across calls.
func (q *Queue) FetchBatch(ctx context.Context, filter model.WorkFilter, limit int, cursor string) ([]model.Document, error) {
	filter.WorkType = q.workType
	return q.st.GetNeedingAnalysis(ctx, filter, limit, cursor)
}

// Claim attempts to mark doc as in-progress for this queue's work type.
// Returns errdefs.ErrAlreadyClaimed (wrapped) if another worker holds it.
func (q *Queue) Claim(ctx context.Context, doc model.Document, filter model.WorkFilter) (*store.ClaimHandle, error) {
	filter.WorkType = q.workType
	handle, err := q.st.Claim(ctx, doc.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("claim %s for %s: %w", doc.ID, q.workType, err)
	}
	return handle, nil
}

// Complete releases the claim after the caller has recorded its own
// completion row(s); it does not itself write an AnalysisCompletion.
func (q *Queue) Complete(ctx context.Context, handle *store.ClaimHandle) error {
	return q.st.Complete(ctx, handle)
}

// Release gives up a claim without marking anything complete, used on
// early-exit error paths so another worker can retry the document sooner
// than the stale-lease window.
func (q *Queue) Release(ctx context.Context, handle *store.ClaimHandle) error {
	return q.st.ReleaseClaim(ctx, handle)
}
