// Package extract turns supported document files into plain text with page
// offsets.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// Extractor reads one file format.
type Extractor interface {
	Extract(ctx context.Context, path string) (*domain.ExtractedText, error)
}

// Registry dispatches on the lowercase file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry with the text, markdown, PDF and DOCX readers.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	text := NewTextExtractor()
	r.Register(".txt", text)
	r.Register(".md", text)
	r.Register(".markdown", text)
	r.Register(".pdf", NewPDFExtractor())
	r.Register(".docx", NewDOCXExtractor())
	return r
}

func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supports reports whether a reader is registered for path's extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Registry) Extract(ctx context.Context, path string) (*domain.ExtractedText, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, domain.ErrUnsupportedFormat.WithCause(fmt.Errorf("extension %q", ext))
	}

	out, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if out.FileType == "" {
		out.FileType = domain.FileTypeFor(path)
	}
	return out, nil
}
