package core

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// fallbackCharsets are the single-byte encodings accepted for legacy exports.
var fallbackCharsets = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
}

// TextDecoder turns uploaded bytes into UTF-8 text.
//
// A UTF-8 byte order mark is dropped and BOM-marked UTF-16 is transcoded.
// Anything else must already be valid UTF-8, unless a fallback charset is
// configured, in which case invalid input is decoded with it.
type TextDecoder struct {
	fallbackName string
	fallback     encoding.Encoding
}

// NewTextDecoder returns a decoder using the named fallback charset, or none
// when name is empty.
func NewTextDecoder(name string) (*TextDecoder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return &TextDecoder{}, nil
	}
	enc, ok := fallbackCharsets[name]
	if !ok {
		return nil, fmt.Errorf("unsupported fallback charset %q", name)
	}
	return &TextDecoder{fallbackName: name, fallback: enc}, nil
}

// Decode returns data as a UTF-8 string or an *EncodingError.
func (d *TextDecoder) Decode(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]

	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", &EncodingError{Charset: "utf-16", Err: err}
		}
		data = out
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	if d.fallback != nil {
		out, err := d.fallback.NewDecoder().Bytes(data)
		if err != nil {
			return "", &EncodingError{Charset: d.fallbackName, Err: err}
		}
		return string(out), nil
	}

	return "", &EncodingError{Charset: "utf-8", Offset: firstInvalidByte(data)}
}

func firstInvalidByte(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}
