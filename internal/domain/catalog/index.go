package catalog

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const indexFPR = 0.001

// Index answers "is this a known material code" without a network round
// trip. A bloom filter rejects most unknown codes; the exact set confirms.
type Index struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	codes  map[string]struct{}
}

// NewIndex builds an index over the given material codes.
func NewIndex(codes []string) *Index {
	idx := &Index{}
	idx.Reset(codes)
	return idx
}

// LoadIndex builds an index from every active material in the repository.
func LoadIndex(ctx context.Context, repo Repository) (*Index, error) {
	idx := NewIndex(nil)
	if err := idx.Refresh(ctx, repo); err != nil {
		return nil, err
	}
	return idx, nil
}

// Refresh replaces the indexed codes with the active materials of repo. On
// error the index is left unchanged.
func (i *Index) Refresh(ctx context.Context, repo Repository) error {
	materials, err := repo.ListMaterials(ctx)
	if err != nil {
		return errors.Wrap(err, "list materials")
	}
	codes := make([]string, 0, len(materials))
	for _, m := range materials {
		if m.Active {
			codes = append(codes, m.Code)
		}
	}
	i.Reset(codes)
	return nil
}

// Reset replaces the indexed codes.
func (i *Index) Reset(codes []string) {
	n := uint(len(codes))
	if n < 1024 {
		n = 1024
	}
	filter := bloom.NewWithEstimates(n, indexFPR)
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		filter.AddString(c)
		set[c] = struct{}{}
	}

	i.mu.Lock()
	i.filter = filter
	i.codes = set
	i.mu.Unlock()
}

// Add indexes additional codes.
func (i *Index) Add(codes ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range codes {
		i.filter.AddString(c)
		i.codes[c] = struct{}{}
	}
}

// Known reports whether code is an indexed material.
func (i *Index) Known(code string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.filter.TestString(code) {
		return false
	}
	_, ok := i.codes[code]
	return ok
}

// Len returns the number of indexed codes.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.codes)
}
