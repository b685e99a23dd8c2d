package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentSource is the originating file of a set of chunks.
type DocumentSource struct {
	ID             int64
	SourcePath     string
	FileType       string
	FileModifiedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SourceCount pairs a source path with the number of chunks stored for it.
type SourceCount struct {
	SourceFile string
	Count      int
}

// SupportedExtensions lists the file types the ingestion pipeline reads.
var SupportedExtensions = map[string]string{
	".txt":      "text",
	".md":       "markdown",
	".markdown": "markdown",
	".pdf":      "pdf",
	".docx":     "docx",
}

// FileTypeFor returns the file type for path, or "" when unsupported.
func FileTypeFor(path string) string {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSupportedFile reports whether path has an extension the pipeline reads.
func IsSupportedFile(path string) bool {
	return FileTypeFor(path) != ""
}

// DisplayName strips the directory from a source path.
func DisplayName(sourceFile string) string {
	if sourceFile == "" {
		return "Unknown Document"
	}
	name := sourceFile
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
