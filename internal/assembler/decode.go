package assembler

import (
	"bytes"
	"errors"
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

// UnsupportedAttachmentError rejects a single file whose content is not text.
// It is reported alongside the assembled prompt and never aborts a request.
type UnsupportedAttachmentError struct {
	Filename string
	Reason   string
}

func (e *UnsupportedAttachmentError) Error() string {
	return fmt.Sprintf("unsupported attachment %q: %s", e.Filename, e.Reason)
}

func (e *UnsupportedAttachmentError) Code() string { return "unsupported_attachment" }

// IsUnsupportedAttachment reports whether err rejects an attachment.
func IsUnsupportedAttachment(err error) bool {
	var e *UnsupportedAttachmentError
	return errors.As(err, &e)
}

// decodeText returns content as UTF-8 text. UTF-16 input with a byte order
// mark is transcoded; a UTF-8 BOM is stripped. Anything that is not valid
// UTF-8 afterwards, or that carries NUL bytes, is treated as binary.
// A partial upload may end inside a character; that tail is dropped first.
func decodeText(filename string, content []byte, partial bool) ([]byte, error) {
	utf16 := bytes.HasPrefix(content, bomUTF16LE) || bytes.HasPrefix(content, bomUTF16BE)
	if partial {
		content = trimCutTail(content, utf16)
	}
	switch {
	case utf16:
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), content)
		if err != nil {
			return nil, &UnsupportedAttachmentError{Filename: filename, Reason: "undecodable UTF-16: " + err.Error()}
		}
		content = out
	case bytes.HasPrefix(content, bomUTF8):
		content = content[len(bomUTF8):]
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, &UnsupportedAttachmentError{Filename: filename, Reason: "binary content"}
	}
	if !utf8.Valid(content) {
		return nil, &UnsupportedAttachmentError{Filename: filename, Reason: "not valid UTF-8 text"}
	}
	return content, nil
}

// trimCutTail drops a trailing incomplete character left by cutting an
// upload at an arbitrary byte.
func trimCutTail(b []byte, utf16 bool) []byte {
	if utf16 {
		return b[:len(b)&^1]
	}
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
