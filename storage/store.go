// Package storage adapts report tables to the shape the search engine and
// the backfill job consume. Column naming differences between deployments
// are resolved here through a Schema and never leak into scoring code.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/WongZhiYun/Lost-Found/models"
)

var (
	// ErrNotFound is returned when a requested report doesn't exist
	ErrNotFound = errors.New("not found")
)

// Schema maps Report fields onto a table.
type Schema struct {
	Table             string
	TitleColumn       string
	DescriptionColumn string
	LocationColumn    string
	CategoryColumn    string
	ImageColumn       string
	FingerprintColumn string
	CreatedColumn     string
	// ApprovedClause is a boolean SQL expression selecting visible rows.
	ApprovedClause string
}

// PostSchema matches the "post" table: location, image, date_posted and an
// is_approved flag.
var PostSchema = Schema{
	Table:             "post",
	TitleColumn:       "title",
	DescriptionColumn: "description",
	LocationColumn:    "location",
	CategoryColumn:    "category",
	ImageColumn:       "image",
	FingerprintColumn: "image_hash",
	CreatedColumn:     "date_posted",
	ApprovedClause:    "is_approved",
}

// ReportSchema matches the "report" table: place, image_filename, created_at
// and a moderation status column.
var ReportSchema = Schema{
	Table:             "report",
	TitleColumn:       "title",
	DescriptionColumn: "description",
	LocationColumn:    "place",
	CategoryColumn:    "category",
	ImageColumn:       "image_filename",
	FingerprintColumn: "image_hash",
	CreatedColumn:     "created_at",
	ApprovedClause:    "status = 'approved'",
}

// SchemaByName resolves a configured schema name.
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(name) {
	case "", "post":
		return PostSchema, nil
	case "report":
		return ReportSchema, nil
	}
	return Schema{}, fmt.Errorf("unknown schema %q", name)
}

type dialect struct {
	placeholder func(n int) string
	like        string
	// matchText is false when like only folds ASCII case; the caller then
	// filters text itself with Unicode case folding.
	matchText bool
	// created wraps the created column in the select list.
	created func(col string) string
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	like:        "ILIKE",
	matchText:   true,
	created:     func(col string) string { return fmt.Sprintf("COALESCE(%s, 'epoch'::timestamp)", col) },
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	created:     func(col string) string { return col },
}

func (s Schema) selectList(d dialect) string {
	text := func(col string) string { return fmt.Sprintf("COALESCE(%s, '')", col) }
	return strings.Join([]string{
		"id",
		text(s.TitleColumn),
		text(s.DescriptionColumn),
		text(s.LocationColumn),
		text(s.CategoryColumn),
		text(s.ImageColumn),
		text(s.FingerprintColumn),
		fmt.Sprintf("COALESCE((%s), FALSE)", s.ApprovedClause),
		d.created(s.CreatedColumn),
	}, ", ")
}

func (s Schema) listApprovedQuery(d dialect, filter models.ReportFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE (%s)", s.selectList(d), s.Table, s.ApprovedClause)
	if filter.Category != "" {
		fmt.Fprintf(&sb, " AND %s = %s", s.CategoryColumn, next(filter.Category))
	}
	if filter.Text != "" && d.matchText {
		pattern := likePattern(filter.Text)
		cols := []string{s.TitleColumn, s.DescriptionColumn, s.LocationColumn}
		conds := make([]string, 0, len(cols))
		for _, col := range cols {
			conds = append(conds, fmt.Sprintf(`%s %s %s ESCAPE '\'`, col, d.like, next(pattern)))
		}
		fmt.Fprintf(&sb, " AND (%s)", strings.Join(conds, " OR "))
	}
	fmt.Fprintf(&sb, " ORDER BY %s DESC, id DESC", s.CreatedColumn)
	return sb.String(), args
}

func (s Schema) getQuery(d dialect) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", s.selectList(d), s.Table, d.placeholder(1))
}

func (s Schema) listWithImagesQuery(d dialect) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL AND %s <> '' ORDER BY id",
		s.selectList(d), s.Table, s.ImageColumn, s.ImageColumn)
}

func (s Schema) updateFingerprintQuery(d dialect) string {
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE id = %s",
		s.Table, s.FingerprintColumn, d.placeholder(1), d.placeholder(2))
}

// likePattern escapes LIKE wildcards in text and wraps it for substring
// matching with ESCAPE '\'.
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(text)) + "%"
}

// matchesText reports whether any text field of r contains text, folding
// case the way the scorer does.
func matchesText(r models.Report, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	return text == "" || containsFold(text, r.Title, r.Description, r.Location)
}
