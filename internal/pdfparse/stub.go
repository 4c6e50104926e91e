package pdfparse

import (
	"context"
	"fmt"
	"sync"

	"github.com/oversift/trustwatch/internal/trust"
)

// Stub answers parses from an in-process table keyed by PDF URL; it backs
// demo mode and tests.
type Stub struct {
	mu   sync.RWMutex
	docs map[string]trust.PDFDocument
}

// NewStub builds a Stub preloaded with the given documents.
func NewStub(docs map[string]trust.PDFDocument) *Stub {
	table := make(map[string]trust.PDFDocument, len(docs))
	for url, doc := range docs {
		table[url] = doc
	}
	return &Stub{docs: table}
}

// SetDocument installs or replaces the document served for url.
func (s *Stub) SetDocument(url string, doc trust.PDFDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[url] = doc
}

// Parse returns the table entry for pdfURL or an error.
func (s *Stub) Parse(ctx context.Context, pdfURL string) (trust.PDFDocument, error) {
	if err := ctx.Err(); err != nil {
		return trust.PDFDocument{}, fmt.Errorf("parse canceled: %w", err)
	}
	s.mu.RLock()
	doc, ok := s.docs[pdfURL]
	s.mu.RUnlock()
	if !ok {
		return trust.PDFDocument{}, fmt.Errorf("no parsed document for %s", pdfURL)
	}
	return doc, nil
}
