package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Book is the canonical catalog record. ISBN10/ISBN13 are the natural keys:
// at least one is set, and neither changes once the row exists.
type Book struct {
	ID     uuid.UUID `json:"id" db:"id"`
	ISBN10 *string   `json:"isbn10,omitempty" db:"isbn10"`
	ISBN13 *string   `json:"isbn13,omitempty" db:"isbn13"`

	Title     string  `json:"title" db:"title"`
	TitleLong *string `json:"title_long,omitempty" db:"title_long"`

	// Relationships. AuthorID is the first author in source order.
	AuthorID     *uuid.UUID `json:"author_id,omitempty" db:"author_id"`
	PublisherID  *uuid.UUID `json:"publisher_id,omitempty" db:"publisher_id"`
	CoverImageID *uuid.UUID `json:"cover_image_id,omitempty" db:"cover_image_id"`

	PublishedDate *time.Time `json:"published_date,omitempty" db:"publication_date"`
	Pages         *int       `json:"pages,omitempty" db:"pages"`
	Binding       *string    `json:"binding,omitempty" db:"binding"`
	Language      *string    `json:"language,omitempty" db:"language"`
	Edition       *string    `json:"edition,omitempty" db:"edition"`
	Dimensions    *string    `json:"dimensions,omitempty" db:"dimensions"`

	Synopsis *string `json:"synopsis,omitempty" db:"synopsis"`
	Overview *string `json:"overview,omitempty" db:"overview"`
	Excerpt  *string `json:"excerpt,omitempty" db:"excerpt"`

	DeweyDecimal pq.StringArray   `json:"dewey_decimal,omitempty" db:"dewey_decimal"`
	OtherISBNs   pq.StringArray   `json:"other_isbns,omitempty" db:"other_isbns"`
	ListPrice    *decimal.Decimal `json:"list_price,omitempty" db:"list_price"`

	OriginalImageURL *string `json:"original_image_url,omitempty" db:"original_image_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NaturalKey returns the preferred identifier for logs and error messages
func (b *Book) NaturalKey() string {
	if b.ISBN13 != nil && *b.ISBN13 != "" {
		return *b.ISBN13
	}
	if b.ISBN10 != nil {
		return *b.ISBN10
	}
	return ""
}

// HasNaturalKey reports whether the book can be deduplicated
func (b *Book) HasNaturalKey() bool {
	return (b.ISBN10 != nil && *b.ISBN10 != "") || (b.ISBN13 != nil && *b.ISBN13 != "")
}

// ========================================
// RELATED ENTITIES
// ========================================

// EntityKind names a name-keyed entity table
type EntityKind string

const (
	EntityAuthor    EntityKind = "author"
	EntityPublisher EntityKind = "publisher"
	EntitySubject   EntityKind = "subject"
)

func (k EntityKind) IsValid() bool {
	switch k {
	case EntityAuthor, EntityPublisher, EntitySubject:
		return true
	}
	return false
}

func (k EntityKind) String() string {
	return string(k)
}

// Entity is an author, publisher or subject row. Name matching is exact and case-sensitive.
type Entity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Resolution maps every requested name to its entity id
type Resolution struct {
	Kind    EntityKind           `json:"kind"`
	IDs     map[string]uuid.UUID `json:"ids"`
	Created []string             `json:"created,omitempty"`
}

func NewResolution(kind EntityKind) *Resolution {
	return &Resolution{Kind: kind, IDs: make(map[string]uuid.UUID)}
}

// Lookup returns the id for name and whether it was resolved
func (r *Resolution) Lookup(name string) (uuid.UUID, bool) {
	if r == nil {
		return uuid.Nil, false
	}
	id, ok := r.IDs[name]
	return id, ok
}

// ========================================
// IMAGES
// ========================================

const ImageTypeBookCover = "book_cover"

// Image is an uploaded cover. ProviderID is the object key in the image host.
type Image struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	URL        string            `json:"url" db:"url"`
	ProviderID string            `json:"provider_id" db:"provider_id"`
	ImageType  string            `json:"image_type" db:"image_type"`
	AltText    *string           `json:"alt_text,omitempty" db:"alt_text"`
	Metadata   map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// MediaSource is either a remote URL or raw bytes
type MediaSource struct {
	URL  string
	Data []byte
}

func (s MediaSource) IsEmpty() bool {
	return s.URL == "" && len(s.Data) == 0
}

// UploadedMedia is what the image host returns for a stored asset
type UploadedMedia struct {
	URL        string `json:"url"`
	ProviderID string `json:"provider_id"`
	Folder     string `json:"folder"`
	SizeBytes  int    `json:"size_bytes"`
}
