package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/WongZhiYun/Lost-Found/models"
	"github.com/WongZhiYun/Lost-Found/search"
	"github.com/WongZhiYun/Lost-Found/storage"
)

// Searcher is the search engine as seen by the HTTP layer.
type Searcher interface {
	Search(ctx context.Context, q models.Query) (*models.Page, error)
	SimilarTo(ctx context.Context, id int64, limit int) ([]models.ScoredCandidate, error)
}

const imageReadError = "could not read that image"

type Handler struct {
	engine         Searcher
	logger         *zap.Logger
	publicURL      string
	maxUploadBytes int64
}

func NewHandler(engine Searcher, logger *zap.Logger, publicURL string, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 16 << 20
	}
	return &Handler{
		engine:         engine,
		logger:         logger,
		publicURL:      strings.TrimRight(publicURL, "/"),
		maxUploadBytes: maxUploadBytes,
	}
}

// SearchText handles GET /search?q=&category=&page=&per_page=.
func (h *Handler) SearchText(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage, err := pageParams(q.Get("page"), q.Get("per_page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	res, err := h.engine.Search(r.Context(), models.Query{
		Text:     q.Get("q"),
		Category: q.Get("category"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		h.searchFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(res, ""))
}

// SearchByImage handles POST /search/by-image with a multipart "file".
// Without per_page the whole capped top-N list comes back on one page.
func (h *Handler) SearchByImage(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "IMAGE_REQUIRED", "multipart field \"file\" is required")
		return
	}
	page, perPage, err := pageParams(r.FormValue("page"), r.FormValue("per_page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	res, err := h.engine.Search(r.Context(), models.Query{
		Image:    image,
		Category: r.FormValue("category"),
		Page:     page,
		PerPage:  perPage,
	})
	if errors.Is(err, search.ErrQueryImageInvalid) {
		writeError(w, http.StatusUnprocessableEntity, "QUERY_IMAGE_INVALID", imageReadError)
		return
	}
	if err != nil {
		h.searchFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(res, ""))
}

// SearchCombined handles POST /search/combined. An unreadable image does
// not fail the request: the search is retried on text alone and the
// response carries image_error.
func (h *Handler) SearchCombined(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	page, perPage, err := pageParams(r.FormValue("page"), r.FormValue("per_page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	query := models.Query{
		Text:     r.FormValue("q"),
		Image:    image,
		Category: r.FormValue("category"),
		Page:     page,
		PerPage:  perPage,
	}
	if raw := strings.TrimSpace(r.FormValue("alpha")); raw != "" {
		alpha, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "alpha must be a number")
			return
		}
		query.Alpha = &alpha
	}

	var imageErr string
	res, err := h.engine.Search(r.Context(), query)
	if errors.Is(err, search.ErrQueryImageInvalid) {
		h.logger.Info("Query image unreadable, falling back to text", zap.Error(err))
		imageErr = imageReadError
		query.Image = nil
		res, err = h.engine.Search(r.Context(), query)
	}
	if err != nil {
		h.searchFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(res, imageErr))
}

// Similar handles GET /reports/{id}/similar?limit=.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "report id must be a positive integer")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a non-negative integer")
			return
		}
	}

	results, err := h.engine.SimilarTo(r.Context(), id, limit)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, search.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "REPORT_NOT_FOUND", fmt.Sprintf("report %d not found", id))
		return
	case errors.Is(err, search.ErrNoFingerprint):
		writeError(w, http.StatusUnprocessableEntity, "REPORT_NOT_FINGERPRINTED", fmt.Sprintf("report %d has no image fingerprint", id))
		return
	case err != nil:
		h.searchFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(&models.Page{
		Results: results,
		Total:   len(results),
		Page:    1,
		PerPage: len(results),
	}, ""))
}

// readUpload parses a multipart body and returns the "file" part, or nil
// when absent. It writes the error response itself when ok is false.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected a multipart/form-data body")
		return nil, false
	}

	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "could not read uploaded file")
		return nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "could not read uploaded file")
		return nil, false
	}
	if int64(len(data)) > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
		return nil, false
	}
	return data, true
}

func (h *Handler) searchFailed(w http.ResponseWriter, err error) {
	h.logger.Error("Search failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", "search is temporarily unavailable")
}

func (h *Handler) toResponse(p *models.Page, imageErr string) models.SearchResponse {
	items := make([]models.SearchResultItem, 0, len(p.Results))
	for _, c := range p.Results {
		items = append(items, models.SearchResultItem{
			ID:          c.Report.ID,
			Title:       c.Report.Title,
			Description: c.Report.Description,
			Location:    c.Report.Location,
			Category:    c.Report.Category,
			ImageURL:    h.imageURL(c.Report.ImageRef),
			Score:       round(c.FinalScore),
			TextScore:   round(c.TextScore),
			ImageScore:  round(c.ImageScore),
			CreatedAt:   formatTime(c.Report.CreatedAt),
		})
	}
	return models.SearchResponse{
		Results:    items,
		Total:      p.Total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		ImageError: imageErr,
	}
}

func (h *Handler) imageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	}
	ref = strings.TrimLeft(strings.ReplaceAll(ref, `\`, "/"), "/")
	for _, prefix := range []string{"static/uploads/", "uploads/"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	return h.publicURL + "/" + ref
}

func pageParams(rawPage, rawPerPage string) (page, perPage int, err error) {
	if rawPage != "" {
		if page, err = strconv.Atoi(rawPage); err != nil {
			return 0, 0, fmt.Errorf("page must be an integer")
		}
	}
	if rawPerPage != "" {
		if perPage, err = strconv.Atoi(rawPerPage); err != nil {
			return 0, 0, fmt.Errorf("per_page must be an integer")
		}
	}
	return page, perPage, nil
}

// round keeps scores readable in JSON.
func round(v float64) float64 {
	return float64(int64(v*1e4+0.5)) / 1e4
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorBody{Error: models.ErrorDetail{Code: code, Message: message}})
}
