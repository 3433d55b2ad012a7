package reminder

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// renderHTML converts generated markdown-ish email text to HTML for
// the email body. On conversion failure the plain text is returned
// unchanged; a slightly plainer email beats a dropped reminder.
func renderHTML(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return text
	}
	return buf.String()
}
