package readers

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

type TxtFileReader struct{}

func (r *TxtFileReader) CanRead(f File) bool {
	return isTextType(DetectType(f))
}

func (r *TxtFileReader) ReadText(f File) (string, error) {
	data := f.Data
	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		buf, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", fmt.Errorf("%w: decoding %s: %w", ErrExtraction, f.Name, err)
		}

		return string(buf), nil
	}

	data = bytes.TrimPrefix(data, bomUTF8)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrExtraction, f.Name)
	}

	return string(data), nil
}
