// Package models defines data types for the book inventory.
package models

import (
	"strings"
	"time"
)

// dateLayout is the wire and storage format of publication dates.
const dateLayout = "2006-01-02"

// Book is a single catalogue entry.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	ISBN            *string   `json:"isbn"`
	Price           float64   `json:"price"`
	Stock           int       `json:"stock"`
	Available       bool      `json:"available"`
	PublicationDate *string   `json:"publication_date"`
	Pages           *int      `json:"pages"`
	Description     *string   `json:"description"`
	ImageURL        *string   `json:"image_url"`
	AuthorID        *int64    `json:"author_id"`
	PublisherID     *int64    `json:"publisher_id"`
	GenreID         *int64    `json:"genre_id"`
	AuthorName      *string   `json:"author,omitempty"`
	PublisherName   *string   `json:"publisher,omitempty"`
	GenreName       *string   `json:"genre,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BookInput is the payload for creating a book.
type BookInput struct {
	Title           string  `json:"title" binding:"required,max=255"`
	ISBN            *string `json:"isbn" binding:"omitempty,max=20,isbn"`
	Price           float64 `json:"price" binding:"gt=0"`
	Stock           int     `json:"stock" binding:"gte=0"`
	Available       *bool   `json:"available"`
	PublicationDate *string `json:"publication_date" binding:"omitempty,datetime=2006-01-02"`
	Pages           *int    `json:"pages" binding:"omitempty,gt=0"`
	Description     *string `json:"description"`
	ImageURL        *string `json:"image_url" binding:"omitempty,max=2048"`
	AuthorID        *int64  `json:"author_id" binding:"omitempty,gt=0"`
	PublisherID     *int64  `json:"publisher_id" binding:"omitempty,gt=0"`
	GenreID         *int64  `json:"genre_id" binding:"omitempty,gt=0"`
}

// Validate checks the business rules for a new book. It is applied to every
// creation path, including CSV rows and batch operations that bypass binding.
func (in *BookInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrMissingTitle
	}

	if len(in.Title) > 255 {
		return ErrFieldTooLong("title", 255)
	}

	if in.Price <= 0 {
		return ErrInvalidPrice
	}

	if in.Stock < 0 {
		return ErrInvalidStock
	}

	if in.Pages != nil && *in.Pages <= 0 {
		return ErrInvalidPages
	}

	return validateDate(in.PublicationDate)
}

// NewBook builds an unsaved Book from the input.
func (in *BookInput) NewBook() *Book {
	available := true
	if in.Available != nil {
		available = *in.Available
	}

	return &Book{
		Title:           in.Title,
		ISBN:            nonBlank(in.ISBN),
		Price:           in.Price,
		Stock:           in.Stock,
		Available:       available,
		PublicationDate: nonBlank(in.PublicationDate),
		Pages:           in.Pages,
		Description:     nonBlank(in.Description),
		ImageURL:        nonBlank(in.ImageURL),
		AuthorID:        in.AuthorID,
		PublisherID:     in.PublisherID,
		GenreID:         in.GenreID,
	}
}

// BookPatch holds the fields of a partial book update. Nil fields are left unchanged.
type BookPatch struct {
	Title           *string  `json:"title,omitempty" binding:"omitempty,max=255"`
	ISBN            *string  `json:"isbn,omitempty" binding:"omitempty,max=20,isbn"`
	Price           *float64 `json:"price,omitempty" binding:"omitempty,gt=0"`
	Stock           *int     `json:"stock,omitempty" binding:"omitempty,gte=0"`
	Available       *bool    `json:"available,omitempty"`
	PublicationDate *string  `json:"publication_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Pages           *int     `json:"pages,omitempty" binding:"omitempty,gt=0"`
	Description     *string  `json:"description,omitempty"`
	ImageURL        *string  `json:"image_url,omitempty" binding:"omitempty,max=2048"`
	AuthorID        *int64   `json:"author_id,omitempty" binding:"omitempty,gt=0"`
	PublisherID     *int64   `json:"publisher_id,omitempty" binding:"omitempty,gt=0"`
	GenreID         *int64   `json:"genre_id,omitempty" binding:"omitempty,gt=0"`
}

// Validate checks the fields that are present.
func (p *BookPatch) Validate() error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return ErrMissingTitle
		}

		if len(t) > 255 {
			return ErrFieldTooLong("title", 255)
		}

		p.Title = &t
	}

	if p.Price != nil && *p.Price <= 0 {
		return ErrInvalidPrice
	}

	if p.Stock != nil && *p.Stock < 0 {
		return ErrInvalidStock
	}

	if p.Pages != nil && *p.Pages <= 0 {
		return ErrInvalidPages
	}

	return validateDate(p.PublicationDate)
}

// Empty reports whether the patch changes nothing.
func (p *BookPatch) Empty() bool {
	return p.Title == nil && p.ISBN == nil && p.Price == nil && p.Stock == nil &&
		p.Available == nil && p.PublicationDate == nil && p.Pages == nil &&
		p.Description == nil && p.ImageURL == nil && p.AuthorID == nil &&
		p.PublisherID == nil && p.GenreID == nil
}

// Apply returns a copy of b with the patch applied.
func (p *BookPatch) Apply(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.ISBN != nil {
		b.ISBN = nonBlank(p.ISBN)
	}
	if p.Price != nil {
		b.Price = *p.Price
	}
	if p.Stock != nil {
		b.Stock = *p.Stock
	}
	if p.Available != nil {
		b.Available = *p.Available
	}
	if p.PublicationDate != nil {
		b.PublicationDate = nonBlank(p.PublicationDate)
	}
	if p.Pages != nil {
		b.Pages = p.Pages
	}
	if p.Description != nil {
		b.Description = nonBlank(p.Description)
	}
	if p.ImageURL != nil {
		b.ImageURL = nonBlank(p.ImageURL)
	}
	if p.AuthorID != nil {
		b.AuthorID = p.AuthorID
	}
	if p.PublisherID != nil {
		b.PublisherID = p.PublisherID
	}
	if p.GenreID != nil {
		b.GenreID = p.GenreID
	}

	return b
}

// BookUpdate is one item of a bulk update.
type BookUpdate struct {
	ID int64 `json:"id" binding:"required,gt=0"`
	BookPatch
}

// StockAdjustment is the payload for PATCH /books/:id/stock.
type StockAdjustment struct {
	Delta int `json:"delta" binding:"required,ne=0"`
}

// BookListOpts holds filters for listing books.
type BookListOpts struct {
	Search      string
	AuthorID    int64
	PublisherID int64
	GenreID     int64
	Limit       int
	Offset      int
}

func validateDate(s *string) error {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}

	if _, err := time.Parse(dateLayout, strings.TrimSpace(*s)); err != nil {
		return ErrInvalidDate
	}

	return nil
}

// nonBlank trims s and returns nil for empty values.
func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}

	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}

	return &t
}
