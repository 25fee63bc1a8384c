// Package chunker splits story text into overlapping, size-bounded chunks.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

var ErrInvalidSize = errors.New("invalid chunk size")

// Splitter produces chunks of at most Size runes, with Overlap runes shared
// between neighbours where the text allows it. Splits prefer paragraph, line
// and word boundaries before falling back to hard character cuts.
type Splitter struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

// New returns a Splitter or ErrInvalidSize when overlap is not in [0, size).
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidSize, size, overlap)
	}

	return &Splitter{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}, nil
}

// Default returns a Splitter with the 1000/200 configuration.
func Default() *Splitter {
	s, _ := New(DefaultSize, DefaultOverlap)
	return s
}

// Size returns the maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the target overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Chunks yields (chunk index, chunk text) pairs. Splitting runs when iteration
// starts, so the sequence can be ranged over any number of times. Empty or
// whitespace-only text yields nothing.
func (s *Splitter) Chunks(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		pieces, err := s.splitter.SplitText(text)
		if err != nil {
			log.Printf("[Chunker] Failed to split text: %v", err)
			return
		}

		i := 0
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			if !yield(i, piece) {
				return
			}
			i++
		}
	}
}

// Split collects Chunks into a slice.
func (s *Splitter) Split(text string) []string {
	var out []string
	for _, chunk := range s.Chunks(text) {
		out = append(out, chunk)
	}
	return out
}
