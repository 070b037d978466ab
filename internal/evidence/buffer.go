package evidence

import (
	"context"
	"slices"
	"sync"

	"github.com/nao1215/cookieaudit/internal/model"
)

// Buffer holds the page evidence of a run until it is finalized.
// It is append-only between Clear calls.
type Buffer interface {
	Append(ctx context.Context, runID string, ev model.PageEvidence) error
	List(ctx context.Context, runID string) ([]model.PageEvidence, error)
	Count(ctx context.Context, runID string) (int, error)
	Clear(ctx context.Context, runID string) error
}

// MemoryBuffer is an in-process Buffer.
type MemoryBuffer struct {
	mu   sync.Mutex
	runs map[string][]model.PageEvidence
}

var _ Buffer = (*MemoryBuffer)(nil)

// NewMemoryBuffer creates an empty MemoryBuffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{runs: make(map[string][]model.PageEvidence)}
}

// Append implements Buffer.
func (b *MemoryBuffer) Append(_ context.Context, runID string, ev model.PageEvidence) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs[runID] = append(b.runs[runID], ev)
	return nil
}

// List implements Buffer.
func (b *MemoryBuffer) List(_ context.Context, runID string) ([]model.PageEvidence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.runs[runID]), nil
}

// Count implements Buffer.
func (b *MemoryBuffer) Count(_ context.Context, runID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runs[runID]), nil
}

// Clear implements Buffer.
func (b *MemoryBuffer) Clear(_ context.Context, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.runs, runID)
	return nil
}
