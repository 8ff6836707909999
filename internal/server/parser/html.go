package parser

import (
	"html"
	"regexp"
	"strings"
)

// HTML strips tags, dropping scripts, styles and the document head.
type HTML struct{}

func (HTML) Format() string { return "html" }

func (HTML) MIMETypes() []string { return []string{"text/html", "application/xhtml+xml"} }

func (HTML) Extensions() []string { return []string{"html", "htm", "xhtml"} }

var (
	htmlDropped    = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlBlockOpen  = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	htmlBlockClose = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	htmlBreak      = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	htmlTag        = regexp.MustCompile(`<[^>]+>`)
	htmlSpaces     = regexp.MustCompile(`[ \t]+`)
)

func (HTML) Extract(content []byte) (string, error) {
	s := string(content)

	s = htmlDropped.ReplaceAllString(s, "")
	s = htmlComment.ReplaceAllString(s, "")
	s = htmlBlockOpen.ReplaceAllString(s, "\n")
	s = htmlBlockClose.ReplaceAllString(s, "\n")
	s = htmlBreak.ReplaceAllString(s, "\n")
	s = htmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = htmlSpaces.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}
