package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// DOCXExtractor reads paragraph text from word/document.xml.
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

func (e *DOCXExtractor) Extract(_ context.Context, path string) (*domain.ExtractedText, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrPathNotFound.WithCause(err)
		}
		return nil, domain.ErrCorruptFile.WithCause(err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, domain.ErrCorruptFile.WithCause(err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, domain.ErrCorruptFile.WithCause(err)
		}

		text, err := parseDocumentXML(content)
		if err != nil {
			return nil, domain.ErrCorruptFile.WithCause(err)
		}
		return &domain.ExtractedText{Text: text, FileType: "docx"}, nil
	}

	return nil, domain.ErrCorruptFile.WithCause(errors.New("word/document.xml missing"))
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
		Tables     []table     `xml:"tbl"`
	} `xml:"body"`
}

type table struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []paragraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []struct {
		Content string `xml:",chardata"`
	} `xml:"t"`
}

func (p paragraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// parseDocumentXML keeps one line per body paragraph, then table cells row by
// row with cells separated by tabs.
func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	lines := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		lines = append(lines, p.text())
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				parts := make([]string, 0, len(cell.Paragraphs))
				for _, p := range cell.Paragraphs {
					parts = append(parts, p.text())
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			lines = append(lines, strings.Join(cells, "\t"))
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
