package parser

// PlainText handles text formats that need no markup removal.
type PlainText struct{}

func (PlainText) Format() string { return "plaintext" }

func (PlainText) MIMETypes() []string {
	return []string{
		"text/plain", "text/csv", "text/tab-separated-values",
		"application/json", "application/xml", "text/xml",
	}
}

func (PlainText) Extensions() []string {
	return []string{"txt", "text", "csv", "tsv", "json", "xml", "log"}
}

func (PlainText) Extract(content []byte) (string, error) {
	return string(content), nil
}
