package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/WongZhiYun/Lost-Found/models"
)

// MemoryStore keeps reports in process. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[int64]models.Report
}

func NewMemoryStore(reports ...models.Report) *MemoryStore {
	s := &MemoryStore{reports: make(map[int64]models.Report, len(reports))}
	for _, r := range reports {
		s.reports[r.ID] = r
	}
	return s
}

// Put inserts or replaces a report.
func (s *MemoryStore) Put(r models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
}

func (s *MemoryStore) ListApproved(_ context.Context, filter models.ReportFilter) ([]models.Report, error) {
	text := strings.ToLower(strings.TrimSpace(filter.Text))

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Report
	for _, r := range s.reports {
		if !r.Approved {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if text != "" && !containsFold(text, r.Title, r.Description, r.Location) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListWithImages(_ context.Context) ([]models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Report
	for _, r := range s.reports {
		if r.ImageRef != "" {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) UpdateFingerprint(_ context.Context, id int64, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	r.Fingerprint = fingerprint
	s.reports[id] = r
	return nil
}

func containsFold(lowerNeedle string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), lowerNeedle) {
			return true
		}
	}
	return false
}

// EnsureFingerprintColumn is a no-op; every report has a fingerprint field.
func (s *MemoryStore) EnsureFingerprintColumn(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
