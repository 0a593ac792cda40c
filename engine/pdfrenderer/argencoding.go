package pdfrenderer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ArgEncoding is the narrow encoding used for interpreter arguments
type ArgEncoding string

const (
	ArgEncodingUTF8        ArgEncoding = "utf-8"
	ArgEncodingWindows1252 ArgEncoding = "windows-1252"
)

// ParseArgEncoding accepts the names used in configuration
func ParseArgEncoding(name string) (ArgEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return ArgEncodingUTF8, nil
	case "windows-1252", "cp1252", "ansi":
		return ArgEncodingWindows1252, nil
	}
	return "", fmt.Errorf("unknown argument encoding %q", name)
}

// leadByteLength returns the sequence length announced by a UTF-8 leading byte.
// The 5 and 6 byte forms are not valid UTF-8 and never produced by the encoder.
func leadByteLength(b byte) int {
	switch {
	case b <= 0x7f:
		return 1
	case b >= 0xc2 && b <= 0xdf:
		return 2
	case b >= 0xe0 && b <= 0xef:
		return 3
	case b >= 0xf0 && b <= 0xf7:
		return 4
	}
	return 0
}

// encodedLength is the number of bytes s occupies once encoded as UTF-8
func encodedLength(s string) int {
	var buf [utf8.UTFMax]byte
	size := 0
	for _, r := range s {
		utf8.EncodeRune(buf[:], r)
		size += leadByteLength(buf[0])
	}
	return size
}

// encodeArg converts one argument into a NUL-terminated narrow string
func encodeArg(arg string, encoding ArgEncoding) ([]byte, error) {
	if encoding == ArgEncodingWindows1252 {
		encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(arg))
		if err != nil {
			return nil, fmt.Errorf("argument %q cannot be represented in %s: %w", arg, encoding, err)
		}
		return append(encoded, 0), nil
	}

	arg = strings.ToValidUTF8(arg, string(utf8.RuneError))
	buf := make([]byte, 0, encodedLength(arg)+1)
	buf = append(buf, arg...)
	return append(buf, 0), nil
}

// encodeArgs converts a whole argument vector
func encodeArgs(args []string, encoding ArgEncoding) ([][]byte, error) {
	argv := make([][]byte, 0, len(args))
	for _, arg := range args {
		encoded, err := encodeArg(arg, encoding)
		if err != nil {
			return nil, err
		}
		argv = append(argv, encoded)
	}
	return argv, nil
}
