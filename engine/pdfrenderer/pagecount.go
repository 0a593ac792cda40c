package pdfrenderer

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// CountPages reads the page count of a PDF without rendering it
func CountPages(path string) (count int, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			count = 0
			err = fmt.Errorf("unable to read PDF %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("unable to open PDF %s: %w", path, err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
