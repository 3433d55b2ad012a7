package reminder

import (
	"regexp"
	"strings"
)

// DefaultSubject is used when the generated email carries no usable
// "Subject:" line.
const DefaultSubject = "Reminder: Contract Event"

var subjectLine = regexp.MustCompile(`(?m)^\s*\**\s*Subject:\s*(.+?)\s*\**\s*$`)

// ExtractSubject pulls the "Subject: ..." line out of generated email
// text. It returns the subject and the body with that line removed.
// Without a subject line the full text becomes the body and the
// subject falls back to DefaultSubject.
func ExtractSubject(generated string) (subject, body string) {
	m := subjectLine.FindStringSubmatchIndex(generated)
	if m == nil {
		return DefaultSubject, strings.TrimSpace(generated)
	}
	subject = strings.TrimSpace(generated[m[2]:m[3]])
	if subject == "" {
		subject = DefaultSubject
	}
	body = strings.TrimSpace(generated[:m[0]] + generated[m[1]:])
	return subject, body
}
