package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// TextSource reads one event per line: the event type, optionally followed by a
// payload. A payload that parses as JSON is decoded, anything else is kept as text.
// Blank lines and lines starting with '#' are skipped.
//
//	TASK write the release notes
//	APPROVE {"by": "ana"}
type TextSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewTextSource creates a source reading r.
func NewTextSource(r io.Reader) *TextSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &TextSource{scanner: s}
}

// Next returns the next event.
func (s *TextSource) Next(ctx context.Context) (domain.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Event{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return domain.Event{}, err
			}
			return domain.Event{}, io.EOF
		}
		s.line++

		text, err := SanitizeInput(s.scanner.Text())
		if err != nil {
			return domain.Event{}, fmt.Errorf("%w: line %d: %v", ErrInvalidEvent, s.line, err)
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		return parseLine(text), nil
	}
}

func parseLine(text string) domain.Event {
	eventType, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return domain.NewEvent(eventType, nil)
	}
	var payload any
	if err := json.Unmarshal([]byte(rest), &payload); err == nil {
		return domain.NewEvent(eventType, payload)
	}
	return domain.NewEvent(eventType, rest)
}
