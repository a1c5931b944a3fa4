// Package backfill computes missing or stale image fingerprints for stored
// reports.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/WongZhiYun/Lost-Found/metrics"
	"github.com/WongZhiYun/Lost-Found/models"
	"github.com/WongZhiYun/Lost-Found/phash"
	"github.com/WongZhiYun/Lost-Found/uploads"
)

var ErrAlreadyRunning = errors.New("backfill already running")

// Store is the write side of the report store.
type Store interface {
	ListWithImages(ctx context.Context) ([]models.Report, error)
	UpdateFingerprint(ctx context.Context, id int64, fingerprint string) error
}

// Summary counts what a run did with each report.
type Summary struct {
	Scanned     int `json:"scanned"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	MissingFile int `json:"missing_file"`
	Errors      int `json:"errors"`
}

type result string

const (
	resultUpdated   result = "updated"
	resultUnchanged result = "unchanged"
	resultMissing   result = "missing_file"
	resultError     result = "error"
)

func (s *Summary) add(r result) {
	s.Scanned++
	switch r {
	case resultUpdated:
		s.Updated++
	case resultUnchanged:
		s.Unchanged++
	case resultMissing:
		s.MissingFile++
	case resultError:
		s.Errors++
	}
}

type Option func(*Job)

// WithWorkers bounds the number of images hashed at once.
func WithWorkers(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.workers = n
		}
	}
}

// Job is not reentrant: a Run started while another is in progress fails
// with ErrAlreadyRunning.
type Job struct {
	store   Store
	files   uploads.Storage
	logger  *zap.Logger
	workers int

	running atomic.Bool
	writeMu sync.Mutex
}

func NewJob(store Store, files uploads.Storage, logger *zap.Logger, opts ...Option) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Job{store: store, files: files, logger: logger, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run hashes every report that has an image reference. Failures on one
// report are counted and never stop the run; a stored fingerprint is only
// replaced by a freshly computed one. When ctx is canceled the summary of
// the reports handled so far is returned along with ctx.Err().
func (j *Job) Run(ctx context.Context) (Summary, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	start := time.Now()
	reports, err := j.store.ListWithImages(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list reports: %w", err)
	}
	j.logger.Info("Backfill started", zap.Int("reports", len(reports)), zap.Int("workers", j.workers))

	var (
		summary Summary
		mu      sync.Mutex
	)
	g := new(errgroup.Group)
	g.SetLimit(j.workers)
	for _, r := range reports {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, ok := j.process(ctx, r)
			if !ok {
				return nil
			}
			metrics.BackfillReports.WithLabelValues(string(res)).Inc()
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	j.logger.Info("Backfill finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("missingFile", summary.MissingFile),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", time.Since(start)),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// process handles one report. ok is false when the report was abandoned
// because ctx ended.
func (j *Job) process(ctx context.Context, r models.Report) (res result, ok bool) {
	if ctx.Err() != nil {
		return "", false
	}
	log := j.logger.With(zap.Int64("reportId", r.ID), zap.String("image", r.ImageRef))

	data, err := j.files.ReadBytes(ctx, r.ImageRef)
	switch {
	case errors.Is(err, uploads.ErrNotFound):
		log.Warn("Image file missing")
		return resultMissing, true
	case err != nil && ctx.Err() != nil:
		return "", false
	case err != nil:
		log.Warn("Failed to read image", zap.Error(err))
		return resultError, true
	}

	fp, err := phash.Compute(data)
	if err != nil {
		log.Warn("Failed to fingerprint image", zap.Error(err))
		return resultError, true
	}
	hex := fp.String()
	if hex == strings.ToLower(strings.TrimSpace(r.Fingerprint)) {
		return resultUnchanged, true
	}

	j.writeMu.Lock()
	err = j.store.UpdateFingerprint(ctx, r.ID, hex)
	j.writeMu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		log.Warn("Failed to store fingerprint", zap.Error(err))
		return resultError, true
	}
	log.Debug("Fingerprint updated", zap.String("fingerprint", hex))
	return resultUpdated, true
}
