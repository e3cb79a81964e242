package store

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/models"
)

// bookSelect selects a book with its reference names. Callers append WHERE,
// ORDER BY and locking clauses.
const bookSelect = `SELECT b.id, b.title, b.isbn, b.price::float8, b.stock, b.available,
	b.publication_date::text, b.pages, b.description, b.image_url,
	b.author_id, b.publisher_id, b.genre_id, a.name, p.name, g.name,
	b.created_at, b.updated_at
	FROM books b
	LEFT JOIN authors a ON a.id = b.author_id
	LEFT JOIN publishers p ON p.id = b.publisher_id
	LEFT JOIN genres g ON g.id = b.genre_id`

// auditColumns lists the columns selected for audit queries.
const auditColumns = `id, user_id, action, table_name, record_id, old_values, new_values,
	ip_address, user_agent, description, created_at`

// scanBook scans a single row into a models.Book.
func scanBook(scan func(dest ...any) error) (*models.Book, error) {
	var b models.Book

	err := scan(
		&b.ID,
		&b.Title,
		&b.ISBN,
		&b.Price,
		&b.Stock,
		&b.Available,
		&b.PublicationDate,
		&b.Pages,
		&b.Description,
		&b.ImageURL,
		&b.AuthorID,
		&b.PublisherID,
		&b.GenreID,
		&b.AuthorName,
		&b.PublisherName,
		&b.GenreName,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

// collectBooks scans all rows into a book slice.
func collectBooks(rows pgx.Rows) ([]models.Book, error) {
	books := make([]models.Book, 0, 16)

	for rows.Next() {
		b, err := scanBook(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}

		books = append(books, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating book rows: %w", err)
	}

	return books, nil
}

// collectAuditEntries scans audit rows. Undecodable JSON snapshots are logged
// and left empty rather than failing the whole query.
func collectAuditEntries(rows pgx.Rows, log *logrus.Logger) ([]models.AuditEntry, error) {
	entries := make([]models.AuditEntry, 0, 16)

	for rows.Next() {
		var e models.AuditEntry
		var action string
		var oldJSON, newJSON []byte

		if err := rows.Scan(
			&e.ID, &e.UserID, &action, &e.TableName, &e.RecordID,
			&oldJSON, &newJSON, &e.IPAddress, &e.UserAgent, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Action = models.AuditAction(action)
		e.OldValues = decodeSnapshot(oldJSON, log)
		e.NewValues = decodeSnapshot(newJSON, log)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return entries, nil
}

func decodeSnapshot(raw []byte, log *logrus.Logger) map[string]any {
	if raw == nil {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		log.WithError(err).Warn("failed to unmarshal audit snapshot")
		return nil
	}

	return m
}

// encodeSnapshot marshals an audit snapshot; nil stays SQL NULL.
func encodeSnapshot(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	return json.Marshal(m)
}
