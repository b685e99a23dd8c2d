package extract

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// TextExtractor reads plain text and markdown as UTF-8. Invalid byte
// sequences become U+FFFD.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Extract(_ context.Context, path string) (*domain.ExtractedText, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &domain.ExtractedText{
		Text:     strings.ToValidUTF8(string(data), "\uFFFD"),
		FileType: domain.FileTypeFor(path),
	}, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrPathNotFound.WithCause(err)
		}
		return nil, domain.ErrCorruptFile.WithCause(err)
	}
	return data, nil
}
