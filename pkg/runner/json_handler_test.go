package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSource(t *testing.T) {
	input := strings.Join([]string{
		`{"type": "TASK", "payload": {"topic": "docs"}}`,
		`"PING"`,
		``,
		`{"payload": 1}`,
		`[1, 2]`,
		`{"type": "DONE"}`,
	}, "\n")
	src := NewJSONSource(strings.NewReader(input))
	ctx := context.Background()

	ev, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.NewEvent("TASK", map[string]any{"topic": "docs"}), ev)

	ev, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.NewEvent("PING", nil), ev)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrInvalidEvent, "missing type")
	assert.ErrorContains(t, err, "line 4")

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrInvalidEvent, "not an object")

	ev, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DONE", ev.Type)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONObserver(&buf)

	obs.Snapshot(domain.Snapshot{Machine: "agent", ID: "a1", Status: domain.StatusActive, Configuration: []string{"idle"}})
	obs.Signal(domain.Signal{Type: "progress", Data: 0.5, Source: "a1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var snap struct {
		Kind     string `json:"kind"`
		Snapshot struct {
			Machine       string   `json:"machine"`
			Configuration []string `json:"configuration"`
			Status        string   `json:"status"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &snap))
	assert.Equal(t, "snapshot", snap.Kind)
	assert.Equal(t, "agent", snap.Snapshot.Machine)
	assert.Equal(t, []string{"idle"}, snap.Snapshot.Configuration)
	assert.Equal(t, "active", snap.Snapshot.Status)

	assert.JSONEq(t, `{"kind":"signal","signal":{"type":"progress","data":0.5,"source":"a1"}}`, lines[1])
}
