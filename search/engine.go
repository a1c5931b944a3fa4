// Package search ranks approved reports against a text and/or image query.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/WongZhiYun/Lost-Found/cache"
	"github.com/WongZhiYun/Lost-Found/metrics"
	"github.com/WongZhiYun/Lost-Found/models"
	"github.com/WongZhiYun/Lost-Found/phash"
	"github.com/WongZhiYun/Lost-Found/scoring"
)

var (
	// ErrQueryImageInvalid is returned when the uploaded query image cannot
	// be decoded. It wraps phash.ErrDecode.
	ErrQueryImageInvalid = errors.New("query image invalid")
	// ErrReportNotFound is returned by SimilarTo for unknown or unapproved
	// reports.
	ErrReportNotFound = errors.New("report not found")
	// ErrNoFingerprint is returned by SimilarTo when the seed report has
	// never been hashed.
	ErrNoFingerprint = errors.New("report has no image fingerprint")
)

// Store is the read side of the report store.
type Store interface {
	ListApproved(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
	Get(ctx context.Context, id int64) (*models.Report, error)
}

// Mode names the signals a query carries.
type Mode string

const (
	ModeBrowse   Mode = "browse"
	ModeText     Mode = "text"
	ModeImage    Mode = "image"
	ModeCombined Mode = "combined"
)

// Config tunes ranking and pagination.
type Config struct {
	// DefaultAlpha weights the image score of combined queries that carry no
	// alpha. Nil means scoring.DefaultAlpha.
	DefaultAlpha *float64
	PageSize     int
	MaxPageSize  int
	// ImageTopN caps image-only results before pagination and is also their
	// default page size. A full image scan is not indexed and does not
	// support deep paging.
	ImageTopN         int
	Workers           int
	ParallelThreshold int
}

func DefaultConfig() Config {
	alpha := scoring.DefaultAlpha
	return Config{
		DefaultAlpha:      &alpha,
		PageSize:          10,
		MaxPageSize:       100,
		ImageTopN:         20,
		Workers:           runtime.NumCPU(),
		ParallelThreshold: 256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxPageSize < c.PageSize {
		c.MaxPageSize = max(d.MaxPageSize, c.PageSize)
	}
	if c.ImageTopN <= 0 {
		c.ImageTopN = d.ImageTopN
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ParallelThreshold <= 0 {
		c.ParallelThreshold = d.ParallelThreshold
	}
	if c.DefaultAlpha == nil {
		c.DefaultAlpha = d.DefaultAlpha
	} else {
		alpha := scoring.ClampAlpha(*c.DefaultAlpha)
		c.DefaultAlpha = &alpha
	}
	return c
}

type Option func(*Engine)

// WithFingerprintCache reuses query image fingerprints across requests.
func WithFingerprintCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	cache  cache.Cache
}

func NewEngine(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: store, cfg: cfg.withDefaults(), logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// ModeOf reports which signals q carries.
func ModeOf(q models.Query) Mode {
	hasText := strings.TrimSpace(q.Text) != ""
	hasImage := len(q.Image) > 0
	switch {
	case hasText && hasImage:
		return ModeCombined
	case hasImage:
		return ModeImage
	case hasText:
		return ModeText
	}
	return ModeBrowse
}

// Search resolves approved candidates, scores them, and returns one page of
// the ranked list.
func (e *Engine) Search(ctx context.Context, q models.Query) (page *models.Page, err error) {
	mode := ModeOf(q)
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrQueryImageInvalid):
			outcome = "invalid_image"
		case err != nil:
			outcome = "error"
		}
		metrics.SearchRequests.WithLabelValues(string(mode), outcome).Inc()
		metrics.SearchDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	text := strings.TrimSpace(q.Text)

	var queryFP phash.Fingerprint
	if mode == ModeImage || mode == ModeCombined {
		queryFP, err = e.queryFingerprint(ctx, q.Image)
		if err != nil {
			return nil, err
		}
	}

	// Any text narrows the candidates, combined queries included. Only
	// image-only queries see the whole approved corpus.
	filter := models.ReportFilter{Category: strings.TrimSpace(q.Category), Text: text}
	candidates, err := e.store.ListApproved(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	metrics.SearchCandidates.Observe(float64(len(candidates)))

	alpha := e.alpha(mode, q.Alpha)
	scored, err := e.scoreAll(ctx, candidates, text, queryFP, alpha)
	if err != nil {
		return nil, err
	}
	Rank(scored)

	perPage := q.PerPage
	if mode == ModeImage {
		if len(scored) > e.cfg.ImageTopN {
			scored = scored[:e.cfg.ImageTopN]
		}
		if perPage <= 0 {
			perPage = e.cfg.ImageTopN
		}
	}
	return e.paginate(scored, q.Page, perPage), nil
}

// SimilarTo returns the approved reports whose images look most like the
// given report's image, best first, excluding the report itself.
func (e *Engine) SimilarTo(ctx context.Context, id int64, limit int) ([]models.ScoredCandidate, error) {
	seed, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !seed.Approved {
		return nil, fmt.Errorf("report %d: %w", id, ErrReportNotFound)
	}
	if seed.Fingerprint == "" {
		return nil, fmt.Errorf("report %d: %w", id, ErrNoFingerprint)
	}
	fp, err := phash.Parse(seed.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("report %d: %w", id, err)
	}

	candidates, err := e.store.ListApproved(ctx, models.ReportFilter{})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	others := candidates[:0:0]
	for _, c := range candidates {
		if c.ID != id && c.Fingerprint != "" {
			others = append(others, c)
		}
	}

	scored, err := e.scoreAll(ctx, others, "", fp, 1)
	if err != nil {
		return nil, err
	}
	Rank(scored)

	if limit <= 0 || limit > e.cfg.ImageTopN {
		limit = e.cfg.ImageTopN
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (e *Engine) alpha(mode Mode, requested *float64) float64 {
	switch mode {
	case ModeText, ModeBrowse:
		return 0
	case ModeImage:
		return 1
	}
	if requested == nil {
		return *e.cfg.DefaultAlpha
	}
	return scoring.ClampAlpha(*requested)
}

func (e *Engine) queryFingerprint(ctx context.Context, data []byte) (phash.Fingerprint, error) {
	var key string
	if e.cache != nil {
		key = cache.Key(data)
		hit, ok, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			e.logger.Warn("Query fingerprint cache unavailable", zap.Error(err))
			metrics.QueryFingerprintCache.WithLabelValues("error").Inc()
		case ok:
			if fp, perr := phash.Parse(hit); perr == nil {
				metrics.QueryFingerprintCache.WithLabelValues("hit").Inc()
				return fp, nil
			}
			metrics.QueryFingerprintCache.WithLabelValues("corrupt").Inc()
		default:
			metrics.QueryFingerprintCache.WithLabelValues("miss").Inc()
		}
	}

	fp, err := phash.Compute(data)
	if err != nil {
		return phash.Fingerprint{}, fmt.Errorf("%w: %w", ErrQueryImageInvalid, err)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, fp.String()); err != nil {
			e.logger.Warn("Failed to cache query fingerprint", zap.Error(err))
		}
	}
	return fp, nil
}

func (e *Engine) scoreAll(ctx context.Context, candidates []models.Report, text string, queryFP phash.Fingerprint, alpha float64) ([]models.ScoredCandidate, error) {
	out := make([]models.ScoredCandidate, len(candidates))
	if len(candidates) < e.cfg.ParallelThreshold || e.cfg.Workers == 1 {
		e.scoreRange(candidates, out, text, queryFP, alpha)
		return out, ctx.Err()
	}

	batchSize := (len(candidates) + e.cfg.Workers - 1) / e.cfg.Workers
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < len(candidates); i += batchSize {
		end := min(i+batchSize, len(candidates))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.scoreRange(candidates[i:end], out[i:end], text, queryFP, alpha)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scoreRange writes one ScoredCandidate per report into out. Each index is
// owned by exactly one caller.
func (e *Engine) scoreRange(reports []models.Report, out []models.ScoredCandidate, text string, queryFP phash.Fingerprint, alpha float64) {
	for i, r := range reports {
		sc := models.ScoredCandidate{Report: r}
		if text != "" {
			sc.TextScore = scoring.TextScore(r, text)
		}
		if !queryFP.IsZero() && r.Fingerprint != "" {
			sim, err := phash.Compare(queryFP, r.Fingerprint)
			if err != nil {
				metrics.CorruptFingerprints.Inc()
				e.logger.Debug("Skipping stored fingerprint",
					zap.Int64("reportId", r.ID),
					zap.String("fingerprint", r.Fingerprint),
					zap.Error(err))
			} else {
				sc.ImageScore = sim
			}
		}
		sc.FinalScore = scoring.Combine(sc.TextScore, sc.ImageScore, alpha)
		out[i] = sc
	}
}

// Rank orders candidates by final score, then newest first, then by id
// descending so equal timestamps still order deterministically.
func Rank(scored []models.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if !a.Report.CreatedAt.Equal(b.Report.CreatedAt) {
			return a.Report.CreatedAt.After(b.Report.CreatedAt)
		}
		return a.Report.ID > b.Report.ID
	})
}

func (e *Engine) paginate(scored []models.ScoredCandidate, page, perPage int) *models.Page {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = e.cfg.PageSize
	}
	if perPage > e.cfg.MaxPageSize {
		perPage = e.cfg.MaxPageSize
	}

	p := &models.Page{
		Results: []models.ScoredCandidate{},
		Total:   len(scored),
		Page:    page,
		PerPage: perPage,
	}
	pages := (len(scored) + perPage - 1) / perPage
	if page > pages {
		return p
	}
	start := (page - 1) * perPage
	end := min(start+perPage, len(scored))
	p.Results = scored[start:end]
	return p
}
