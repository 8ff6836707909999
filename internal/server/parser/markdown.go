package parser

import (
	"regexp"
	"strings"
)

// Markdown strips common Markdown syntax, keeping the prose.
type Markdown struct{}

func (Markdown) Format() string { return "markdown" }

func (Markdown) MIMETypes() []string { return []string{"text/markdown", "text/x-markdown"} }

func (Markdown) Extensions() []string { return []string{"md", "markdown"} }

var (
	mdFence        = regexp.MustCompile("(?m)^```.*$")
	mdInlineCode   = regexp.MustCompile("`([^`]+)`")
	mdImage        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLink         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeading      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdEmphasis     = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	mdBlockquote   = regexp.MustCompile(`(?m)^>\s?`)
	mdRule         = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	mdBullet       = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdNumbered     = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	mdBlankRunsExp = regexp.MustCompile(`\n{3,}`)
)

func (Markdown) Extract(content []byte) (string, error) {
	s := string(content)

	// fenced code keeps its body, only the fences go
	s = mdFence.ReplaceAllString(s, "")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdImage.ReplaceAllString(s, "")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdEmphasis.ReplaceAllString(s, "$2")
	s = mdBlockquote.ReplaceAllString(s, "")
	s = mdRule.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	s = mdNumbered.ReplaceAllString(s, "")
	s = mdBlankRunsExp.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s), nil
}
