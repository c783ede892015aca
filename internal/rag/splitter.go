package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Page is the text of one source page. A Number <= 0 means the page is unknown.
type Page struct {
	Number int
	Text   string
}

// ChunkInput is one chunk ready for embedding. Index is document-wide.
type ChunkInput struct {
	Text       string
	PageNumber *int
	Index      int
}

// Splitter cuts page text into overlapping windows of at most chunkSize
// characters, preferring the coarsest separator that keeps pieces small.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Split chunks every page in order. Indices continue across pages; ctx is
// checked between pages.
func (s *Splitter) Split(ctx context.Context, pages []Page) ([]ChunkInput, error) {
	var chunks []ChunkInput
	index := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var pageNumber *int
		if page.Number > 0 {
			n := page.Number
			pageNumber = &n
		}
		for _, text := range s.SplitText(page.Text) {
			chunks = append(chunks, ChunkInput{
				Text:       text,
				PageNumber: pageNumber,
				Index:      index,
			})
			index++
		}
	}
	return chunks, nil
}

// SplitText chunks a single text. Empty or whitespace-only text yields nothing.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var final, small []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			final = append(final, s.merge(small)...)
			small = nil
		}
		if len(finer) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, finer)...)
		}
	}
	if len(small) > 0 {
		final = append(final, s.merge(small)...)
	}
	return final
}

// merge packs consecutive pieces into windows, carrying up to chunkOverlap
// trailing characters of the previous window into the next one.
func (s *Splitter) merge(pieces []string) []string {
	var (
		windows []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			if window := joinWindow(current); window != "" {
				windows = append(windows, window)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if window := joinWindow(current); window != "" {
		windows = append(windows, window)
	}
	return windows
}

func joinWindow(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

// splitKeepSeparator splits text on sep, leaving each separator attached to
// the start of the piece that follows it. An empty sep splits into characters.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}
