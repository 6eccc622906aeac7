package security

import "regexp"

// SecretRedactor masks credentials in text before it is persisted.
type SecretRedactor struct {
	patterns []*regexp.Regexp
}

// NewSecretRedactor returns a redactor with patterns for common secrets.
func NewSecretRedactor() *SecretRedactor {
	return &SecretRedactor{
		patterns: []*regexp.Regexp{
			// key=value style credentials; group 2 is the secret
			regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|auth[_-]?token|secret|password|passwd)(["']?\s*[:=]\s*["']?)([A-Za-z0-9_\-\.+/]{8,})`),
			regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-\.]{10,256})`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			regexp.MustCompile(`gh[pous]_[A-Za-z0-9]{36}`),
			regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
			regexp.MustCompile(`sk_(live|test)_[0-9A-Za-z]{24}`),
			regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]+?-----END [A-Z ]*PRIVATE KEY-----`),
		},
	}
}

const mask = "[REDACTED]"

// Redact returns s with every match masked. Labelled patterns keep their
// label so the context stays readable.
func (r *SecretRedactor) Redact(s string) string {
	for i, p := range r.patterns {
		switch i {
		case 0:
			s = p.ReplaceAllString(s, "${1}${2}"+mask)
		case 1:
			s = p.ReplaceAllString(s, "${1}"+mask)
		default:
			s = p.ReplaceAllString(s, mask)
		}
	}
	return s
}
