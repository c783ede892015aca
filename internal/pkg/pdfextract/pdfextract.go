package pdfextract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("pdf document is empty")

// Page is the plain text of one 1-based PDF page.
type Page struct {
	Number int
	Text   string
}

// Extractor adapts ExtractPages to interfaces that expect a method.
type Extractor struct{}

func (Extractor) ExtractPages(data []byte) ([]Page, error) {
	return ExtractPages(data)
}

// ExtractPages returns one entry per page in document order. Pages without a
// content stream or whose text cannot be decoded come back with empty text.
func ExtractPages(data []byte) (pages []Page, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf reader failed: %w", err)
	}

	total := reader.NumPage()
	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, textErr := page.GetPlainText(nil)
		if textErr != nil {
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
