package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streams(in string) (Streams, *bytes.Buffer) {
	var out bytes.Buffer
	return Streams{In: strings.NewReader(in), Out: &out, Err: &bytes.Buffer{}}, &out
}

func TestResolveMachinePath(t *testing.T) {
	createDir := func(t *testing.T, files ...string) string {
		dir := t.TempDir()
		for _, f := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("id: m"), 0o644))
		}
		return dir
	}

	t.Run("File is used as is", func(t *testing.T) {
		got, err := resolveMachinePath("testdata/chat.yaml")
		require.NoError(t, err)
		assert.Equal(t, "testdata/chat.yaml", got)
	})

	t.Run("Prefers machine.yaml", func(t *testing.T) {
		dir := createDir(t, "machine.json", "machine.yaml")
		got, err := resolveMachinePath(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "machine.yaml"), got)
	})

	t.Run("Fallback to json", func(t *testing.T) {
		dir := createDir(t, "machine.json", "other.yaml")
		got, err := resolveMachinePath(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "machine.json"), got)
	})

	t.Run("Fallback to DirectoryName", func(t *testing.T) {
		moduleDir := filepath.Join(t.TempDir(), "triage")
		require.NoError(t, os.Mkdir(moduleDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "triage.yaml"), []byte("id: m"), 0o644))
		got, err := resolveMachinePath(moduleDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(moduleDir, "triage.yaml"), got)
	})

	t.Run("Nothing matches", func(t *testing.T) {
		_, err := resolveMachinePath(createDir(t, "other.yaml"))
		assert.ErrorContains(t, err, "no machine document")
		_, err = resolveMachinePath(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "not found")
	})
}

func TestExecute_Text(t *testing.T) {
	s, out := streams("ASK hello\n")
	graphOut := filepath.Join(t.TempDir(), "run.mmd")

	err := Execute(context.Background(), RunOptions{
		MachinePath: "testdata/chat.yaml",
		Script:      "testdata/script.yaml",
		Wait:        2 * time.Second,
		GraphOut:    graphOut,
	}, s)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, ">>> Running 'chat'")
	assert.Contains(t, got, "  + thinking\n")
	assert.Contains(t, got, "  + done\n")
	assert.Contains(t, got, "status done")
	assert.Contains(t, got, `output "Hi **there**"`)

	diagram, err := os.ReadFile(graphOut)
	require.NoError(t, err)
	assert.Contains(t, string(diagram), "class idle visited")
	assert.Contains(t, string(diagram), "class thinking visited")
	assert.Contains(t, string(diagram), "class done current")
}

func TestExecute_JSON(t *testing.T) {
	s, out := streams(`{"type":"ASK","payload":"what is the weather?"}` + "\n")

	err := Execute(context.Background(), RunOptions{
		MachinePath: "testdata/chat.yaml",
		Script:      "testdata/script.yaml",
		JSON:        true,
		Wait:        300 * time.Millisecond,
	}, s)
	require.NoError(t, err)

	var kinds []string
	var signal string
	var last map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		kinds = append(kinds, rec["kind"].(string))
		if rec["kind"] == "signal" {
			signal = rec["signal"].(map[string]any)["type"].(string)
		} else {
			last = rec["snapshot"].(map[string]any)
		}
	}
	assert.Contains(t, kinds, "signal")
	assert.Equal(t, "tool_requested", signal)
	assert.Equal(t, "stopped", last["status"], "input ended while waiting for RESULT")
	assert.Equal(t, []any{"tools"}, last["configuration"])
}

func TestExecute_Tools(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("the weather tool uses sh")
	}
	s, out := streams("ASK what is the weather?\n")

	err := Execute(context.Background(), RunOptions{
		MachinePath: "testdata/tool_agent.yaml",
		Script:      "testdata/script.yaml",
		Tools:       "testdata/tools.yaml",
		Wait:        2 * time.Second,
	}, s)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "  + acting\n")
	assert.Contains(t, got, "status done")
	assert.Contains(t, got, `"city":"Lisbon"`)
	assert.Contains(t, got, `"sky":"sunny"`)

	s, _ = streams("")
	err = Execute(context.Background(), RunOptions{MachinePath: "testdata/tool_agent.yaml", Script: "testdata/script.yaml", Tools: "testdata/missing.yaml"}, s)
	assert.ErrorContains(t, err, "failed to read tools config")
}

func TestExecute_Errors(t *testing.T) {
	s, _ := streams("")
	err := Execute(context.Background(), RunOptions{MachinePath: "testdata/chat.yaml"}, s)
	assert.ErrorContains(t, err, "service 'complete' is not bound", "no script means no completion service")

	err = Execute(context.Background(), RunOptions{MachinePath: "testdata/chat.yaml", Script: "testdata/script.yaml", Input: "{bad"}, s)
	assert.ErrorContains(t, err, "--input")

	err = Execute(context.Background(), RunOptions{MachinePath: "testdata/chat.yaml", LogLevel: "loud"}, s)
	assert.ErrorContains(t, err, "unknown log level")
}

func TestValidateAndGraph(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Validate(context.Background(), InspectOptions{MachinePath: "testdata/chat.yaml"}, &buf))
	assert.Contains(t, buf.String(), "Machine 'chat' is valid!")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("id: m\nstates:\n  a:\n    on:\n      GO: nowhere\n"), 0o644))
	buf.Reset()
	assert.Error(t, Validate(context.Background(), InspectOptions{MachinePath: bad}, &buf))
	assert.Contains(t, buf.String(), "nowhere")

	buf.Reset()
	require.NoError(t, Graph(context.Background(), InspectOptions{MachinePath: "testdata/chat.yaml", Active: []string{"tools"}}, &buf))
	assert.Contains(t, buf.String(), "stateDiagram-v2")
	assert.Contains(t, buf.String(), "thinking --> tools : done.invoke.llm [has_tool_calls]")
	assert.Contains(t, buf.String(), "class tools current")
}

func TestCreateRegistry_Caches(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, cache := range []string{"memory", "redis"} {
		t.Run(cache, func(t *testing.T) {
			cfg := config.Default()
			cfg.Completion.Script = "testdata/script.yaml"
			cfg.Completion.Cache = cache
			cfg.Redis.Addr = mr.Addr()
			cfg.Redis.Prefix = "test:" + cache + ":"

			reg, closeCache, err := createRegistry(context.Background(), cfg, logging.NewNop())
			require.NoError(t, err)
			defer closeCache()

			svc, err := reg.Service(ServiceCompleteText)
			require.NoError(t, err)
			req := ports.CompletionRequest{Messages: []ports.Message{{Role: ports.RoleUser, Content: "hello"}}}

			first, err := svc(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, "Hi **there**", first)

			second, err := svc(context.Background(), req)
			require.NoError(t, err, "the second call is served from the cache, the script has a single matching step")
			assert.Equal(t, first, second)
		})
	}

	cfg := config.Default()
	cfg.Completion.Script = "testdata/script.yaml"
	cfg.Completion.Cache = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	_, _, err := createRegistry(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "failed to reach redis")
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(newRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "arbor_test_total 1")
}
