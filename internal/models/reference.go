package models

import (
	"strings"
	"time"

	"github.com/jinzhu/inflection"
)

// RefKind identifies one of the lookup entities a book points at.
type RefKind string

// Reference kinds.
const (
	KindAuthor    RefKind = "author"
	KindPublisher RefKind = "publisher"
	KindGenre     RefKind = "genre"
)

// RefKinds lists every reference kind in a stable order.
var RefKinds = []RefKind{KindAuthor, KindPublisher, KindGenre}

// ParseRefKind accepts a singular or plural kind name ("genre", "Genres").
func ParseRefKind(s string) (RefKind, error) {
	k := RefKind(inflection.Singular(strings.ToLower(strings.TrimSpace(s))))
	for _, known := range RefKinds {
		if k == known {
			return k, nil
		}
	}

	return "", ErrInvalidRefKind
}

// Table returns the table backing the kind.
func (k RefKind) Table() string {
	return inflection.Plural(string(k))
}

// Reference is an author, publisher or genre row.
type Reference struct {
	ID        int64     `json:"id"`
	Kind      RefKind   `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReferenceInput is the payload for creating or renaming a reference.
type ReferenceInput struct {
	Name string `json:"name" binding:"required,max=255"`
}

// Validate trims the name and checks it is present.
func (in *ReferenceInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return ErrMissingName
	}

	if len(in.Name) > 255 {
		return ErrFieldTooLong("name", 255)
	}

	return nil
}

// User is an API consumer. Only used to attribute audit entries.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
