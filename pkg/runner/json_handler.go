package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// JSONSource reads JSON lines. Each line is either an object with a type and an
// optional payload, or a bare string naming the event type.
type JSONSource struct {
	scanner *bufio.Scanner
	line    int
}

type jsonEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewJSONSource creates a source reading r.
func NewJSONSource(r io.Reader) *JSONSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &JSONSource{scanner: s}
}

// Next returns the next event.
func (s *JSONSource) Next(ctx context.Context) (domain.Event, error) {
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

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		if len(text) > maxInputSize() {
			return domain.Event{}, fmt.Errorf("%w: line %d: %v", ErrInvalidEvent, s.line, ErrInputTooLarge)
		}

		var name string
		if err := json.Unmarshal([]byte(text), &name); err == nil {
			text = fmt.Sprintf(`{"type":%q}`, name)
		}
		var ev jsonEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return domain.Event{}, fmt.Errorf("%w: line %d: %v", ErrInvalidEvent, s.line, err)
		}
		eventType, err := SanitizeInput(strings.TrimSpace(ev.Type))
		if err != nil || eventType == "" {
			return domain.Event{}, fmt.Errorf("%w: line %d: missing event type", ErrInvalidEvent, s.line)
		}
		return domain.NewEvent(eventType, ev.Payload), nil
	}
}

// JSONObserver writes every snapshot and signal as one JSON line.
type JSONObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONObserver creates an observer writing to w.
func NewJSONObserver(w io.Writer) *JSONObserver {
	return &JSONObserver{enc: json.NewEncoder(w)}
}

type jsonRecord struct {
	Kind     string           `json:"kind"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Signal   *domain.Signal   `json:"signal,omitempty"`
}

// Snapshot writes {"kind":"snapshot","snapshot":...}.
func (o *JSONObserver) Snapshot(snap domain.Snapshot) {
	o.write(jsonRecord{Kind: "snapshot", Snapshot: &snap})
}

// Signal writes {"kind":"signal","signal":...}.
func (o *JSONObserver) Signal(sig domain.Signal) {
	o.write(jsonRecord{Kind: "signal", Signal: &sig})
}

func (o *JSONObserver) write(rec jsonRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// Values that do not encode (channels, funcs) are dropped rather than stopping the run.
	_ = o.enc.Encode(rec)
}
