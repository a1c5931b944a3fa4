package models

import "time"

// Report is a lost/found item listing as seen by the search engine.
// Optional text fields are empty when absent.
type Report struct {
	ID          int64
	Title       string
	Description string
	Location    string
	Category    string
	ImageRef    string // filename or path relative to the upload root
	Fingerprint string // perceptual hash, hex; empty when never hashed
	Approved    bool
	CreatedAt   time.Time
}

// ReportFilter narrows the approved candidate set at the store.
type ReportFilter struct {
	Category string
	// Text, when set, keeps reports whose title, description or location
	// contains it case-insensitively.
	Text string
}

// Query is a single search request. It is built per request and never shared.
type Query struct {
	Text     string
	Image    []byte
	Category string
	// Alpha is the image weight; nil means the engine default.
	Alpha   *float64
	Page    int
	PerPage int
}

// ScoredCandidate is one report scored against one query.
type ScoredCandidate struct {
	Report     Report
	TextScore  float64
	ImageScore float64
	FinalScore float64
}

// Page is a ranked, paginated slice of candidates.
type Page struct {
	Results []ScoredCandidate
	Total   int
	Page    int
	PerPage int
}

// SearchResultItem represents a single search result
type SearchResultItem struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Location    string  `json:"location,omitempty"`
	Category    string  `json:"category,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Score       float64 `json:"score"`
	TextScore   float64 `json:"text_score"`
	ImageScore  float64 `json:"image_score"`
	CreatedAt   string  `json:"created_at"`
}

// SearchResponse represents the search response body
type SearchResponse struct {
	Results    []SearchResultItem `json:"results"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	ImageError string             `json:"image_error,omitempty"`
}

// ErrorBody is the JSON error envelope returned by the API.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
