package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
)

// Mask replaces redacted entry names.
const Mask = "***"

type piiMiddleware struct {
	next     ports.Journal
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks entry names matching any of the patterns,
// e.g. "password" hides "Set password" from the journal.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.Journal) ports.Journal {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Append(ctx context.Context, sessionID string, records ...domain.JournalRecord) error {
	// Copy so callers keep their records untouched.
	masked := make([]domain.JournalRecord, len(records))
	for i, r := range records {
		if m.matches(r.Entry) {
			r.Entry = Mask
		}
		masked[i] = r
	}
	return m.next.Append(ctx, sessionID, masked...)
}

func (m *piiMiddleware) Records(ctx context.Context, sessionID string) ([]domain.JournalRecord, error) {
	return m.next.Records(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) matches(entry string) bool {
	if entry == "" {
		return false
	}
	for _, p := range m.patterns {
		if p.MatchString(entry) {
			return true
		}
	}
	return false
}
