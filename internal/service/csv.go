package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/bookvault/bookvault/internal/models"
)

// utf8BOM prefixes every CSV export so spreadsheet tools detect UTF-8.
const utf8BOM = "\ufeff"

// Canonical CSV column names. The export writes them; the import accepts them
// along with their Spanish equivalents.
const (
	colTitle           = "title"
	colISBN            = "isbn"
	colPrice           = "price"
	colStock           = "stock"
	colAvailable       = "available"
	colPublicationDate = "publication_date"
	colPages           = "pages"
	colDescription     = "description"
	colImage           = "image_url"
	colAuthor          = "author"
	colPublisher       = "publisher"
	colGenre           = "genre"
)

// bookColumns is the export column order.
var bookColumns = []string{
	colTitle, colISBN, colPrice, colStock, colAvailable, colPublicationDate,
	colPages, colDescription, colImage, colAuthor, colPublisher, colGenre,
}

// headerAliases maps normalised header names to canonical columns.
var headerAliases = map[string]string{
	"title": colTitle, "titulo": colTitle, "nombre": colTitle,
	"isbn": colISBN,
	"price": colPrice, "precio": colPrice,
	"stock": colStock, "existencias": colStock, "cantidad": colStock, "quantity": colStock,
	"available": colAvailable, "disponible": colAvailable,
	"publication_date": colPublicationDate, "fecha_publicacion": colPublicationDate,
	"fecha_de_publicacion": colPublicationDate, "published": colPublicationDate, "fecha": colPublicationDate,
	"pages": colPages, "paginas": colPages,
	"description": colDescription, "descripcion": colDescription,
	"image": colImage, "image_url": colImage, "imagen": colImage, "imagen_url": colImage, "url_imagen": colImage,
	"author": colAuthor, "autor": colAuthor,
	"publisher": colPublisher, "editorial": colPublisher,
	"genre": colGenre, "genero": colGenre, "category": colGenre, "categoria": colGenre,
}

var errNoTitleColumn = errors.New("csv header has no title column")

// normalizeHeader lowercases h, strips accents and joins words with underscores.
func normalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	s, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(h)))
	if err != nil {
		s = strings.ToLower(strings.TrimSpace(h))
	}

	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	}), "_")
}

// csvRow is one data row keyed by canonical column name.
type csvRow struct {
	Line   int
	Fields map[string]string
}

// parseBookCSV reads CSV text with a header row. Quoted fields may contain
// commas, newlines and doubled quotes. Unknown columns are ignored.
func parseBookCSV(text string) ([]csvRow, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, utf8BOM)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, models.ErrEmptyBatch
		}

		return nil, models.NewValidationError("csv", fmt.Sprintf("reading csv header: %v", err))
	}

	cols := make([]string, len(header))
	hasTitle := false

	for i, h := range header {
		cols[i] = headerAliases[normalizeHeader(h)]
		if cols[i] == colTitle {
			hasTitle = true
		}
	}

	if !hasTitle {
		return nil, models.NewValidationError("csv", errNoTitleColumn.Error())
	}

	var rows []csvRow

	for line := 1; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.NewValidationError("csv", fmt.Sprintf("reading csv row %d: %v", line, err))
		}

		if blankRecord(record) {
			line--
			continue
		}

		fields := make(map[string]string, len(cols))
		for i, v := range record {
			if i < len(cols) && cols[i] != "" {
				fields[cols[i]] = strings.TrimSpace(v)
			}
		}

		rows = append(rows, csvRow{Line: line, Fields: fields})
	}

	if len(rows) == 0 {
		return nil, models.ErrEmptyBatch
	}

	return rows, nil
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}

	return true
}

// bookRow is a CSV row converted to a book input and its reference names.
type bookRow struct {
	Input     models.BookInput
	Author    string
	Publisher string
	Genre     string
}

// toBookRow converts and validates one CSV row.
func (r csvRow) toBookRow() (*bookRow, error) {
	f := r.Fields

	price, err := parsePrice(f[colPrice])
	if err != nil {
		return nil, err
	}

	in := models.BookInput{
		Title:           f[colTitle],
		ISBN:            optional(f[colISBN]),
		Price:           price,
		PublicationDate: optional(f[colPublicationDate]),
		Description:     optional(f[colDescription]),
		ImageURL:        optional(f[colImage]),
	}

	if v := f[colStock]; v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil {
			return nil, models.ErrInvalidStock
		}
		in.Stock = stock
	}

	if v := f[colPages]; v != "" {
		pages, err := strconv.Atoi(v)
		if err != nil {
			return nil, models.ErrInvalidPages
		}
		in.Pages = &pages
	}

	if v := f[colAvailable]; v != "" {
		available, err := parseBool(v)
		if err != nil {
			return nil, err
		}
		in.Available = &available
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}

	return &bookRow{
		Input:     in,
		Author:    f[colAuthor],
		Publisher: f[colPublisher],
		Genre:     f[colGenre],
	}, nil
}

// parsePrice accepts "12.50", "12,50" and a leading currency sign.
func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "$€"))
	if s == "" {
		return 0, models.ErrInvalidPrice
	}

	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 {
		return 0, models.ErrInvalidPrice
	}

	return p, nil
}

func parseBool(s string) (bool, error) {
	switch normalizeHeader(s) {
	case "true", "1", "yes", "y", "si", "s", "verdadero":
		return true, nil
	case "false", "0", "no", "n", "falso":
		return false, nil
	}

	return false, models.NewValidationError("available", fmt.Sprintf("available must be true or false, got %q", s))
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	return &s
}

// writeQuotedRow writes fields as one CSV line with every field double-quoted
// and embedded quotes doubled.
func writeQuotedRow(buf *bytes.Buffer, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}

	buf.WriteByte('\n')
}

// bookRecord renders a book in export column order.
func bookRecord(b *models.Book) []string {
	return []string{
		b.Title,
		deref(b.ISBN),
		strconv.FormatFloat(b.Price, 'f', 2, 64),
		strconv.Itoa(b.Stock),
		strconv.FormatBool(b.Available),
		deref(b.PublicationDate),
		derefInt(b.Pages),
		deref(b.Description),
		deref(b.ImageURL),
		deref(b.AuthorName),
		deref(b.PublisherName),
		deref(b.GenreName),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func derefInt(n *int) string {
	if n == nil {
		return ""
	}

	return strconv.Itoa(*n)
}

// renderBooksCSV writes books with a BOM and the canonical header.
func renderBooksCSV(books []models.Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	writeQuotedRow(&buf, bookColumns...)

	for i := range books {
		writeQuotedRow(&buf, bookRecord(&books[i])...)
	}

	return buf.Bytes()
}
