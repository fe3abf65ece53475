package table

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText converts uploaded bytes to UTF-8. UTF-8 (with or without BOM)
// and BOM-marked UTF-16 are decoded exactly; anything else that is not valid
// UTF-8 is read as Windows-1252, the usual encoding of spreadsheet CSV
// exports. Text containing NUL bytes is rejected as binary.
func decodeText(data []byte) ([]byte, error) {
	var out []byte
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		out = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		b, _, err := transform.Bytes(dec, data)
		if err != nil {
			return nil, err
		}
		out = b
	case utf8.Valid(data):
		out = data
	default:
		b, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return nil, err
		}
		out = b
	}

	if bytes.IndexByte(out, 0) >= 0 {
		return nil, errBinary
	}
	return out, nil
}

var errBinary = errors.New("contains NUL bytes")
