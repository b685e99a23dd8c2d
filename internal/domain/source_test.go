package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileTypeFor(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/docs/readme.md", "markdown"},
		{"/docs/NOTES.MARKDOWN", "markdown"},
		{"/docs/a.txt", "text"},
		{"/docs/report.PDF", "pdf"},
		{"/docs/policy.docx", "docx"},
		{"/docs/image.png", ""},
		{"/docs/noext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, FileTypeFor(tt.path))
			assert.Equal(t, tt.expected != "", IsSupportedFile(tt.path))
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "a.pdf", DisplayName("/srv/docs/a.pdf"))
	assert.Equal(t, "b.docx", DisplayName(`C:\docs\b.docx`))
	assert.Equal(t, "plain.txt", DisplayName("plain.txt"))
	assert.Equal(t, "Unknown Document", DisplayName(""))
}
