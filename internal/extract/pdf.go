package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

const pdfToText = "pdftotext"

// PDFExtractor shells out to poppler's pdftotext. Pages arrive separated by
// form feeds and are joined with a newline.
type PDFExtractor struct {
	runner CommandRunner
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{runner: execRunner{}}
}

func NewPDFExtractorWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: runner}
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (*domain.ExtractedText, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrPathNotFound.WithCause(err)
		}
		return nil, domain.ErrCorruptFile.WithCause(err)
	}

	out, err := e.runner.Run(ctx, pdfToText, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, domain.ErrExtractorMissing.WithCause(fmt.Errorf("%s: install poppler-utils", pdfToText))
		}
		return nil, domain.ErrCorruptFile.WithCause(fmt.Errorf("%s failed: %w", pdfToText, err))
	}

	text, pages := joinPages(strings.ToValidUTF8(string(out), "\uFFFD"))
	return &domain.ExtractedText{
		Text:     text,
		FileType: "pdf",
		Pages:    pages,
	}, nil
}

// joinPages splits raw pdftotext output on form feeds and records each page's
// rune range in the joined text.
func joinPages(raw string) (string, []domain.PagePosition) {
	parts := strings.Split(raw, "\f")
	if n := len(parts); n > 1 && strings.TrimSpace(parts[n-1]) == "" {
		parts = parts[:n-1]
	}

	var b strings.Builder
	pages := make([]domain.PagePosition, 0, len(parts))
	offset := 0
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('\n')
			offset++
		}
		n := utf8.RuneCountInString(p)
		pages = append(pages, domain.PagePosition{
			PageNumber: i + 1,
			StartChar:  offset,
			EndChar:    offset + n,
		})
		b.WriteString(p)
		offset += n
	}
	return b.String(), pages
}
