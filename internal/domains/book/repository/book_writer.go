package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookcatalog-backend/internal/config"
	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/pkg/database"
)

// bookWriter writes through db, which is the pool outside a transaction
// and the pgx.Tx inside WithTx.
type bookWriter struct {
	pool     *pgxpool.Pool
	db       Querier
	inTx     bool
	linkMode config.AuthorLinkMode
}

// NewBookWriter returns a pgx BookWriter. linkMode is fixed for the life of the process.
func NewBookWriter(pool *pgxpool.Pool, linkMode config.AuthorLinkMode) BookWriter {
	return &bookWriter{pool: pool, db: pool, linkMode: linkMode}
}

// WithTx runs fn with a writer bound to one transaction. Nested calls reuse it.
func (w *bookWriter) WithTx(ctx context.Context, fn func(BookWriter) error) error {
	if w.inTx {
		return fn(w)
	}
	return database.WithTransaction(ctx, w.pool, func(tx pgx.Tx) error {
		return fn(&bookWriter{pool: w.pool, db: tx, inTx: true, linkMode: w.linkMode})
	})
}

// ========================================
// BOOKS
// ========================================

// UpsertBook locks the row matching either natural key and updates it, or
// inserts a new one. The bool is true when a row was created.
// Natural keys are only filled in, never changed.
func (w *bookWriter) UpsertBook(ctx context.Context, book *model.Book) (*model.Book, bool, error) {
	if !book.HasNaturalKey() {
		return nil, false, fmt.Errorf("%w: book has no isbn", model.ErrPersistence)
	}

	existingID, err := w.lockByNaturalKey(ctx, book)
	if err != nil {
		return nil, false, err
	}

	if existingID != nil {
		book.ID = *existingID
		if err := w.updateBook(ctx, book); err != nil {
			return nil, false, err
		}
		return book, false, nil
	}

	created, err := w.insertBook(ctx, book)
	if err != nil {
		return nil, false, err
	}
	if created {
		return book, true, nil
	}

	// Lost a race against a concurrent insert of the same natural key
	existingID, err = w.lockByNaturalKey(ctx, book)
	if err != nil {
		return nil, false, err
	}
	if existingID == nil {
		return nil, false, fmt.Errorf("%w: conflicting book %s vanished", model.ErrPersistence, book.NaturalKey())
	}
	book.ID = *existingID
	return book, false, nil
}

func (w *bookWriter) lockByNaturalKey(ctx context.Context, book *model.Book) (*uuid.UUID, error) {
	query := `
		SELECT id
		FROM books
		WHERE ($1::text IS NOT NULL AND isbn13 = $1)
		   OR ($2::text IS NOT NULL AND isbn10 = $2)
		LIMIT 1
		FOR UPDATE
	`

	var id uuid.UUID
	err := w.db.QueryRow(ctx, query, book.ISBN13, book.ISBN10).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock book %s: %w", book.NaturalKey(), err)
	}
	return &id, nil
}

func (w *bookWriter) insertBook(ctx context.Context, book *model.Book) (bool, error) {
	query := `
		INSERT INTO books (
			isbn10, isbn13, title, title_long, author_id, publisher_id, cover_image_id,
			publication_date, pages, binding, language, edition, dimensions,
			synopsis, overview, excerpt, dewey_decimal, other_isbns, list_price,
			original_image_url
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19,
			$20
		)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := w.db.QueryRow(ctx, query,
		book.ISBN10,
		book.ISBN13,
		book.Title,
		book.TitleLong,
		book.AuthorID,
		book.PublisherID,
		book.CoverImageID,
		book.PublishedDate,
		book.Pages,
		book.Binding,
		book.Language,
		book.Edition,
		book.Dimensions,
		book.Synopsis,
		book.Overview,
		book.Excerpt,
		[]string(book.DeweyDecimal),
		[]string(book.OtherISBNs),
		book.ListPrice,
		book.OriginalImageURL,
	).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert book %s: %w", book.NaturalKey(), err)
	}
	return true, nil
}

func (w *bookWriter) updateBook(ctx context.Context, book *model.Book) error {
	query := `
		UPDATE books SET
			isbn10             = COALESCE(isbn10, $2),
			isbn13             = COALESCE(isbn13, $3),
			title              = $4,
			title_long         = COALESCE($5, title_long),
			author_id          = COALESCE($6, author_id),
			publisher_id       = COALESCE($7, publisher_id),
			cover_image_id     = COALESCE($8, cover_image_id),
			publication_date   = COALESCE($9, publication_date),
			pages              = COALESCE($10, pages),
			binding            = COALESCE($11, binding),
			language           = COALESCE($12, language),
			edition            = COALESCE($13, edition),
			dimensions         = COALESCE($14, dimensions),
			synopsis           = COALESCE($15, synopsis),
			overview           = COALESCE($16, overview),
			excerpt            = COALESCE($17, excerpt),
			dewey_decimal      = COALESCE($18, dewey_decimal),
			other_isbns        = COALESCE($19, other_isbns),
			list_price         = COALESCE($20, list_price),
			original_image_url = COALESCE($21, original_image_url),
			updated_at         = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := w.db.QueryRow(ctx, query,
		book.ID,
		book.ISBN10,
		book.ISBN13,
		book.Title,
		book.TitleLong,
		book.AuthorID,
		book.PublisherID,
		book.CoverImageID,
		book.PublishedDate,
		book.Pages,
		book.Binding,
		book.Language,
		book.Edition,
		book.Dimensions,
		book.Synopsis,
		book.Overview,
		book.Excerpt,
		nilIfEmpty(book.DeweyDecimal),
		nilIfEmpty(book.OtherISBNs),
		book.ListPrice,
		book.OriginalImageURL,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update book %s: %w", book.NaturalKey(), err)
	}
	return nil
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

// ========================================
// LINKS
// ========================================

// LinkAuthor adds a book_authors row. In column mode the author lives only
// in books.author_id, which UpsertBook already wrote.
func (w *bookWriter) LinkAuthor(ctx context.Context, bookID, authorID uuid.UUID) error {
	if w.linkMode == config.AuthorLinkColumn {
		return nil
	}

	query := `
		INSERT INTO book_authors (book_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (book_id, author_id) DO NOTHING
	`
	if _, err := w.db.Exec(ctx, query, bookID, authorID); err != nil {
		return fmt.Errorf("failed to link author: %w", err)
	}
	return nil
}

func (w *bookWriter) LinkSubject(ctx context.Context, bookID, subjectID uuid.UUID) error {
	query := `
		INSERT INTO book_subjects (book_id, subject_id)
		VALUES ($1, $2)
		ON CONFLICT (book_id, subject_id) DO NOTHING
	`
	if _, err := w.db.Exec(ctx, query, bookID, subjectID); err != nil {
		return fmt.Errorf("failed to link subject: %w", err)
	}
	return nil
}

// ========================================
// IMAGES
// ========================================

// CreateImage inserts an images row and fills ID and CreatedAt
func (w *bookWriter) CreateImage(ctx context.Context, img *model.Image) error {
	metadata, err := json.Marshal(img.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode image metadata: %w", err)
	}
	if img.ImageType == "" {
		img.ImageType = model.ImageTypeBookCover
	}

	query := `
		INSERT INTO images (url, provider_id, image_type, alt_text, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = w.db.QueryRow(ctx, query,
		img.URL,
		img.ProviderID,
		img.ImageType,
		img.AltText,
		metadata,
	).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	return nil
}
