package readers

import (
	"bytes"
	"fmt"
	"io"

	"code.sajari.com/docconv/v2"
)

type convertFunc func(io.Reader) (string, map[string]string, error)

// OfficeFileReader extracts the body text of word-processor documents.
type OfficeFileReader struct {
	mime    string
	convert convertFunc
}

func NewDocxFileReader() *OfficeFileReader {
	return &OfficeFileReader{mime: MimeDocx, convert: docconv.ConvertDocx}
}

func NewODTFileReader() *OfficeFileReader {
	return &OfficeFileReader{mime: MimeODT, convert: docconv.ConvertODT}
}

func (r *OfficeFileReader) CanRead(f File) bool {
	return DetectType(f) == r.mime
}

func (r *OfficeFileReader) ReadText(f File) (string, error) {
	body, _, err := r.convert(bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read document %s: %w", ErrExtraction, f.Name, err)
	}

	return body, nil
}
