package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceDateLayouts are the accepted layouts for document dates, tried in order.
// The first is the format published by the portal.
var SourceDateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	time.RFC3339,
}

// ParseSourceDate parses a document or reference date.
func ParseSourceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date: %w", ErrInvalidInput)
	}
	for _, layout := range SourceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q: %w", s, ErrInvalidInput)
}
