package service

import (
	"errors"
	"testing"

	"github.com/bookvault/bookvault/internal/models"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Título":                "titulo",
		" Fecha de Publicación": "fecha_de_publicacion",
		"Género":                "genero",
		"image-url":             "image_url",
		"PRICE":                 "price",
	}

	for in, want := range tests {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseBookCSV_QuotedFieldsAndAliases(t *testing.T) {
	text := utf8BOM + "Título,Precio,Autor,Notes\n" +
		"\"Dune, Messiah\",\"9,99\",\"Frank \"\"F\"\" Herbert\",ignored\n" +
		"\n" +
		"\"Multi\nline\",5,,\n"

	rows, err := parseBookCSV(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.Line != 1 || first.Fields[colTitle] != "Dune, Messiah" || first.Fields[colAuthor] != `Frank "F" Herbert` {
		t.Errorf("first row = %+v", first)
	}
	if _, ok := first.Fields["notes"]; ok {
		t.Error("unknown columns must be dropped")
	}

	if rows[1].Line != 2 || rows[1].Fields[colTitle] != "Multi\nline" {
		t.Errorf("second row = %+v, blank lines must not count", rows[1])
	}

	br, err := first.toBookRow()
	if err != nil {
		t.Fatalf("toBookRow: %v", err)
	}
	if br.Input.Price != 9.99 || br.Author != `Frank "F" Herbert` {
		t.Errorf("book row = %+v", br)
	}
}

func TestCSVRow_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   error
	}{
		{"blank title", map[string]string{colTitle: " ", colPrice: "1"}, models.ErrMissingTitle},
		{"zero price", map[string]string{colTitle: "A", colPrice: "0"}, models.ErrInvalidPrice},
		{"missing price", map[string]string{colTitle: "A"}, models.ErrInvalidPrice},
		{"bad stock", map[string]string{colTitle: "A", colPrice: "1", colStock: "many"}, models.ErrInvalidStock},
		{"negative stock", map[string]string{colTitle: "A", colPrice: "1", colStock: "-2"}, models.ErrInvalidStock},
		{"bad date", map[string]string{colTitle: "A", colPrice: "1", colPublicationDate: "03/04/2020"}, models.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := csvRow{Line: 1, Fields: tt.fields}.toBookRow()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParsePriceAndBool(t *testing.T) {
	for in, want := range map[string]float64{"12.50": 12.5, "12,50": 12.5, "$ 3": 3, "€7,25": 7.25} {
		got, err := parsePrice(in)
		if err != nil || got != want {
			t.Errorf("parsePrice(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	for in, want := range map[string]bool{"Sí": true, "yes": true, "0": false, "Falso": false} {
		got, err := parseBool(in)
		if err != nil || got != want {
			t.Errorf("parseBool(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := parseBool("maybe"); err == nil {
		t.Error("parseBool(maybe) should fail")
	}
}
