package readers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrExtraction          = errors.New("failed to extract text")
)

const (
	MimeDocx  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeODT   = "application/vnd.oasis.opendocument.text"
	mimeOctet = "application/octet-stream"
)

// File is an uploaded document: a display name, a declared content type
// (possibly empty) and the raw bytes.
type File struct {
	Name string
	Type string
	Data []byte
}

type FileReader interface {
	CanRead(f File) bool
	ReadText(f File) (string, error)
}

var textExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
}

// ReadFile loads a file from disk, declaring its type from the extension.
func ReadFile(path string) (File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading file: %w", err)
	}

	name := filepath.Base(path)
	return File{
		Name: name,
		Type: TypeByExtension(name),
		Data: buf,
	}, nil
}

// TypeByExtension maps a filename to a media type, or "" when unknown.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := textExtensions[ext]; ok {
		return t
	}

	t := docconv.MimeTypeByExtension(name)
	if t == mimeOctet {
		return ""
	}

	return t
}

// DetectType resolves the media type of f: the declared type wins, then the
// extension, then content sniffing.
func DetectType(f File) string {
	if t := mediaType(f.Type); t != "" && t != mimeOctet {
		return t
	}

	if t := TypeByExtension(f.Name); t != "" {
		return t
	}

	return mediaType(mimetype.Detect(f.Data).String())
}

func mediaType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

func isTextType(t string) bool {
	return strings.HasPrefix(t, "text/") || t == "application/json"
}
