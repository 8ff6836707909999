package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the text layer of a PDF. Scanned pages without text yield
// nothing and end up as a parse failure.
type PDF struct{}

func (PDF) Format() string { return "pdf" }

func (PDF) MIMETypes() []string { return []string{"application/pdf", "application/x-pdf"} }

func (PDF) Extensions() []string { return []string{"pdf"} }

func (PDF) Extract(content []byte) (text string, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}
