package pdfrenderer

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// CharacterCodeTable maps single-byte codes of the legacy Turkish code page
// (Windows-1254) to one-character strings and back.
type CharacterCodeTable struct {
	byCode map[byte]string
	byChar map[string]byte
}

var characterCodes atomic.Pointer[CharacterCodeTable]

// CharacterCodes returns the table, or nil before the first InitPDFium
func CharacterCodes() *CharacterCodeTable {
	return characterCodes.Load()
}

// buildCharacterCodes fills the table once, later calls keep the first table
func buildCharacterCodes() {
	if characterCodes.Load() != nil {
		return
	}
	characterCodes.CompareAndSwap(nil, newCharacterCodeTable())
}

func newCharacterCodeTable() *CharacterCodeTable {
	table := &CharacterCodeTable{
		byCode: make(map[byte]string),
		byChar: make(map[string]byte),
	}
	table.add('\n')
	for code := 32; code <= 126; code++ {
		table.add(byte(code))
	}
	for code := 128; code <= 255; code++ {
		// no-break space and soft hyphen are left out
		if code == 0xa0 || code == 0xad {
			continue
		}
		table.add(byte(code))
	}
	return table
}

func (t *CharacterCodeTable) add(code byte) {
	r := charmap.Windows1254.DecodeByte(code)
	// undefined positions decode to U+FFFD or to a C1 control
	if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n') {
		return
	}
	ch := string(r)
	t.byCode[code] = ch
	t.byChar[ch] = code
}

// Len is the number of mapped codes
func (t *CharacterCodeTable) Len() int {
	return len(t.byCode)
}

// Lookup returns the character for a code
func (t *CharacterCodeTable) Lookup(code byte) (string, bool) {
	ch, ok := t.byCode[code]
	return ch, ok
}

// Code returns the code of a one-character string
func (t *CharacterCodeTable) Code(ch string) (byte, bool) {
	code, ok := t.byChar[ch]
	return code, ok
}

// Decode converts codes to text, unmapped codes become U+FFFD
func (t *CharacterCodeTable) Decode(codes []byte) string {
	buf := make([]byte, 0, len(codes))
	for _, code := range codes {
		if ch, ok := t.byCode[code]; ok {
			buf = append(buf, ch...)
			continue
		}
		buf = utf8.AppendRune(buf, utf8.RuneError)
	}
	return string(buf)
}

// Encode converts text to codes, failing on the first character without a code
func (t *CharacterCodeTable) Encode(text string) ([]byte, error) {
	codes := make([]byte, 0, len(text))
	for offset, r := range text {
		code, ok := t.byChar[string(r)]
		if !ok {
			return nil, fmt.Errorf("character %q at offset %d has no legacy code", r, offset)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// lineEndings folds the CRLF and CR line breaks PDFium returns into LF
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// EncodeLegacyText encodes extracted text with the character-code table.
// Line breaks are normalized to '\n' first.
func EncodeLegacyText(text string) ([]byte, error) {
	table := CharacterCodes()
	if table == nil {
		return nil, ErrNotInitialized
	}
	return table.Encode(lineEndings.Replace(text))
}

// DecodeLegacyText decodes bytes produced by EncodeLegacyText
func DecodeLegacyText(codes []byte) (string, error) {
	table := CharacterCodes()
	if table == nil {
		return "", ErrNotInitialized
	}
	return table.Decode(codes), nil
}
