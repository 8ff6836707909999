// Package parser extracts plain text from uploaded material files. A Registry
// selects a normaliser by MIME type, falling back to the file extension when
// the declared type is generic or unknown.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
)

// Document is the parser output.
type Document struct {
	FullText string
	Format   string
}

// Normaliser turns raw bytes of one family of formats into plain text.
type Normaliser interface {
	Format() string
	MIMETypes() []string
	Extensions() []string
	Extract(content []byte) (string, error)
}

// Registry dispatches parsing to registered normalisers.
type Registry struct {
	byMIME map[string]Normaliser
	byExt  map[string]Normaliser
}

// NewRegistry registers ns in order; later normalisers win on conflicts.
func NewRegistry(ns ...Normaliser) *Registry {
	r := &Registry{byMIME: map[string]Normaliser{}, byExt: map[string]Normaliser{}}
	for _, n := range ns {
		for _, m := range n.MIMETypes() {
			r.byMIME[m] = n
		}
		for _, e := range n.Extensions() {
			r.byExt[e] = n
		}
	}
	return r
}

// Default returns a registry with every built-in format.
func Default() *Registry {
	return NewRegistry(PlainText{}, Markdown{}, HTML{}, DOCX{}, PDF{})
}

// NormalizeMIME lower-cases a content type and drops its parameters.
func NormalizeMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func (r *Registry) lookup(mimeType, filename string) (Normaliser, bool) {
	if n, ok := r.byMIME[NormalizeMIME(mimeType)]; ok {
		return n, true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	n, ok := r.byExt[ext]
	return n, ok
}

// IsSupportedMaterialFile reports whether a file with this type and name can
// be parsed.
func (r *Registry) IsSupportedMaterialFile(mimeType, filename string) bool {
	_, ok := r.lookup(mimeType, filename)
	return ok
}

// ParseFileBytesSource extracts the full text of content. Unsupported files
// fail with MATERIAL_UNSUPPORTED_TYPE; malformed files and files without any
// text fail with MATERIAL_PARSE_FAILED.
func (r *Registry) ParseFileBytesSource(ctx context.Context, content []byte, mimeType, filename string, size int64) (*Document, error) {
	n, ok := r.lookup(mimeType, filename)
	if !ok {
		return nil, common.NewError(common.CodeMaterialUnsupportedType,
			fmt.Sprintf("unsupported material type %q", NormalizeMIME(mimeType))).
			WithDetail("mimeType", mimeType).
			WithDetail("filename", filename)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size > 0 && size < int64(len(content)) {
		content = content[:size]
	}

	text, err := n.Extract(content)
	if err != nil {
		return nil, common.WrapError(common.CodeMaterialParseFailed,
			fmt.Sprintf("failed to parse %s file", n.Format()), err)
	}

	text = cleanText(text)
	if text == "" {
		return nil, common.NewError(common.CodeMaterialParseFailed, "no text could be extracted").
			WithDetail("format", n.Format())
	}
	return &Document{FullText: text, Format: n.Format()}, nil
}

func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
