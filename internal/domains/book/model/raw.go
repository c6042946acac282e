package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ========================================
// RAW PROVIDER RECORD
// ========================================

// RawRecord is a book as returned by the metadata provider. Every field is
// optional on the wire; ToCatalogRecord validates it once at the boundary.
type RawRecord struct {
	Title                string          `json:"title"`
	TitleLong            string          `json:"title_long,omitempty"`
	ISBN                 string          `json:"isbn,omitempty"`
	ISBN13               string          `json:"isbn13,omitempty"`
	DeweyDecimal         []string        `json:"dewey_decimal,omitempty"`
	Binding              string          `json:"binding,omitempty"`
	Publisher            string          `json:"publisher,omitempty"`
	Language             string          `json:"language,omitempty"`
	DatePublished        string          `json:"date_published,omitempty"`
	Edition              string          `json:"edition,omitempty"`
	Pages                FlexInt         `json:"pages,omitempty"`
	Dimensions           string          `json:"dimensions,omitempty"`
	DimensionsStructured json.RawMessage `json:"dimensions_structured,omitempty"`
	Overview             string          `json:"overview,omitempty"`
	Excerpt              string          `json:"excerpt,omitempty"`
	Synopsis             string          `json:"synopsis,omitempty"`
	Image                string          `json:"image,omitempty"`
	ImageOriginal        string          `json:"image_original,omitempty"`
	MSRP                 FlexDecimal     `json:"msrp,omitempty"`
	Authors              []string        `json:"authors,omitempty"`
	Subjects             []string        `json:"subjects,omitempty"`
	OtherISBNs           []OtherISBN     `json:"other_isbns,omitempty"`
}

type OtherISBN struct {
	ISBN    string `json:"isbn"`
	Binding string `json:"binding,omitempty"`
}

// Keys returns the normalized identifiers the record answers to
func (r *RawRecord) Keys() []string {
	var keys []string
	if k := NormalizeISBN(r.ISBN13); k != "" {
		keys = append(keys, k)
	}
	if k := NormalizeISBN(r.ISBN); k != "" && (len(keys) == 0 || keys[0] != k) {
		keys = append(keys, k)
	}
	return keys
}

// CatalogRecord is a validated provider record: a typed Book plus the entity
// names that still need resolving to ids.
type CatalogRecord struct {
	Book      Book
	Authors   []string
	Publisher string
	Subjects  []string
	CoverURL  string
}

// ToCatalogRecord validates the raw payload and converts it to typed fields.
// A record without a title or without any usable ISBN is rejected.
func (r *RawRecord) ToCatalogRecord() (*CatalogRecord, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = strings.TrimSpace(r.TitleLong)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: record has no title", ErrInvalidMetadata)
	}

	book := Book{Title: title}

	for _, candidate := range []string{r.ISBN13, r.ISBN} {
		isbn := NormalizeISBN(candidate)
		switch len(isbn) {
		case 13:
			if book.ISBN13 == nil {
				book.ISBN13 = strPtr(isbn)
			}
		case 10:
			if book.ISBN10 == nil {
				book.ISBN10 = strPtr(isbn)
			}
		}
	}
	if !book.HasNaturalKey() {
		return nil, fmt.Errorf("%w: record %q has no valid ISBN", ErrInvalidMetadata, title)
	}
	if book.ISBN10 == nil && book.ISBN13 != nil {
		if alt := ISBN13To10(*book.ISBN13); alt != "" {
			book.ISBN10 = strPtr(alt)
		}
	}
	if book.ISBN13 == nil && book.ISBN10 != nil {
		if alt := ISBN10To13(*book.ISBN10); alt != "" {
			book.ISBN13 = strPtr(alt)
		}
	}

	book.TitleLong = optString(r.TitleLong)
	book.Binding = optString(r.Binding)
	book.Language = optString(r.Language)
	book.Edition = optString(r.Edition)
	book.Dimensions = optString(r.Dimensions)
	book.Overview = optString(r.Overview)
	book.Excerpt = optString(r.Excerpt)
	book.Synopsis = optString(r.Synopsis)
	book.PublishedDate = ParsePublishedDate(r.DatePublished)

	if r.Pages > 0 {
		pages := int(r.Pages)
		book.Pages = &pages
	}
	if r.MSRP.Valid && r.MSRP.Decimal.IsPositive() {
		price := r.MSRP.Decimal
		book.ListPrice = &price
	}

	for _, d := range r.DeweyDecimal {
		if d = strings.TrimSpace(d); d != "" {
			book.DeweyDecimal = append(book.DeweyDecimal, d)
		}
	}
	for _, o := range r.OtherISBNs {
		if isbn := NormalizeISBN(o.ISBN); isbn != "" {
			book.OtherISBNs = append(book.OtherISBNs, isbn)
		}
	}

	cover := strings.TrimSpace(r.ImageOriginal)
	if cover == "" {
		cover = strings.TrimSpace(r.Image)
	}
	book.OriginalImageURL = optString(cover)

	return &CatalogRecord{
		Book:      book,
		Authors:   UniqueNames(r.Authors),
		Publisher: strings.TrimSpace(r.Publisher),
		Subjects:  UniqueNames(r.Subjects),
		CoverURL:  cover,
	}, nil
}

// UniqueNames trims names and drops blanks and exact repeats, keeping first-seen order
func UniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

var publishedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParsePublishedDate accepts the date shapes the provider emits, from a bare
// year up to a full timestamp. Unparseable values yield nil.
func ParsePublishedDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range publishedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string { return &s }

// ========================================
// LENIENT JSON SCALARS
// ========================================

// FlexInt decodes a JSON number or numeric string; anything else decodes as 0
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		if fl, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			*f = FlexInt(fl)
			return nil
		}
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// FlexDecimal decodes a price given as a number or a string
type FlexDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (f *FlexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*f = FlexDecimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*f = FlexDecimal{}
		return nil
	}
	*f = FlexDecimal{Decimal: d, Valid: true}
	return nil
}

func (f FlexDecimal) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Decimal.String())
}
