package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/process"
	redisadapter "github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/completion"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	goredis "github.com/redis/go-redis/v9"
)

// Names bound in the CLI registry.
const (
	ServiceComplete     = "complete"
	ServiceCompleteText = "complete_text"
	InputPrompt         = "prompt"
	ActionSaveReply     = "save_reply"
	GuardHasToolCalls   = "has_tool_calls"
	OutputReply         = "reply"
	ServiceRunTool      = "run_tool"
	InputToolCall       = "tool_call"
	ActionSaveToolReply = "save_tool_result"
)

const defaultLockTTL = 30 * time.Second

// createRegistry binds what machine documents run by the CLI can refer to. The
// completion services exist only when a script is configured. The returned func
// releases the cache backend.
func createRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*registry.Registry, func() error, error) {
	reg := registry.NewRegistry()
	closer := func() error { return nil }

	var tools []process.ToolConfig
	if cfg.Tools != "" {
		var err error
		if tools, err = process.LoadTools(cfg.Tools); err != nil {
			return nil, closer, err
		}
		runner := process.NewRunner(process.WithTools(tools), process.WithBaseDir(filepath.Dir(cfg.Tools)))
		reg.RegisterService(ServiceRunTool, runner.Service())
		// The entering event is the completion that asked for the tool.
		reg.RegisterInput(InputToolCall, func(_ domain.Context, ev domain.Event) any { return ev.Output })
		reg.RegisterAction(ActionSaveToolReply, domain.Assign(saveToolResult))
		logger.Debug("tools bound", "tools", runner.Names())
	}

	reg.RegisterInput(InputPrompt, promptInput(process.Definitions(tools)))
	reg.RegisterAction(ActionSaveReply, domain.Assign(saveReply))
	reg.RegisterGuard(GuardHasToolCalls, hasToolCalls)
	reg.RegisterOutput(OutputReply, func(c domain.Context) any { return c["reply"] })

	if cfg.Completion.Script == "" {
		return reg, closer, nil
	}

	provider, err := completion.LoadScript(cfg.Completion.Script)
	if err != nil {
		return nil, closer, err
	}
	var svc ports.CompletionService = provider

	switch cfg.Completion.Cache {
	case "memory":
		cache := memory.NewCache(memory.WithTTL(cfg.Completion.CacheTTL))
		svc = completion.NewCached(svc, cache,
			completion.WithLocker(memory.NewLocker(), defaultLockTTL),
			completion.WithCacheLogger(logger))

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, closer, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		var opts []redisadapter.Option
		if cfg.Completion.CacheTTL > 0 {
			opts = append(opts, redisadapter.WithTTL(cfg.Completion.CacheTTL))
		}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redisadapter.WithPrefix(cfg.Redis.Prefix))
		}
		lockPrefix := "arbor:lock:"
		if cfg.Redis.Prefix != "" {
			lockPrefix = cfg.Redis.Prefix + "lock:"
		}
		cache := redisadapter.NewFromClient(client, opts...)
		svc = completion.NewCached(svc, cache,
			completion.WithLocker(redisadapter.NewLocker(client, lockPrefix), defaultLockTTL),
			completion.WithCacheLogger(logger))
		closer = cache.Close
	}

	reg.RegisterService(ServiceComplete, completion.Bind(svc, completion.WithModel(cfg.Completion.Model)))
	reg.RegisterService(ServiceCompleteText, completion.Bind(svc,
		completion.WithModel(cfg.Completion.Model),
		completion.WithResult(completion.Content)))
	return reg, closer, nil
}

// promptInput turns the entering event into a request: a string payload becomes a
// single user message advertising tools, anything else is decoded as a request.
func promptInput(tools []ports.Tool) registry.InputFunc {
	return func(c domain.Context, ev domain.Event) any {
		if s, ok := ev.Payload.(string); ok {
			req := ports.CompletionRequest{Messages: []ports.Message{{Role: ports.RoleUser, Content: s}}}
			if len(tools) > 0 {
				req.Tools = tools
			}
			return req
		}
		if ev.Payload == nil {
			return c
		}
		return ev.Payload
	}
}

func saveToolResult(_ domain.Context, ev domain.Event) (map[string]any, error) {
	res, ok := ev.Output.(process.Result)
	if !ok {
		return nil, fmt.Errorf("unexpected tool output %T", ev.Output)
	}
	return map[string]any{"reply": res.Value, "tool_message": res.Message()}, nil
}

func saveReply(_ domain.Context, ev domain.Event) (map[string]any, error) {
	switch out := ev.Output.(type) {
	case *ports.CompletionResponse:
		return map[string]any{"reply": out.Message.Content}, nil
	default:
		return map[string]any{"reply": out}, nil
	}
}

func hasToolCalls(_ domain.Context, ev domain.Event) (bool, error) {
	resp, ok := ev.Output.(*ports.CompletionResponse)
	return ok && len(resp.Message.ToolCalls) > 0, nil
}

// compileMachine resolves path and compiles the document against reg.
func compileMachine(path string, reg *registry.Registry) (*domain.Machine, error) {
	resolved, err := resolveMachinePath(path)
	if err != nil {
		return nil, err
	}
	return compiler.New(reg).CompileFile(resolved)
}

// resolveMachinePath accepts a document or a directory. In a directory the first
// of machine.yaml, machine.yml, machine.json or <dirname>.yaml is used.
func resolveMachinePath(path string) (string, error) {
	if path == "" {
		path = "."
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("machine document not found: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	candidates := []string{"machine.yaml", "machine.yml", "machine.json", filepath.Base(abs) + ".yaml"}
	for _, name := range candidates {
		p := filepath.Join(path, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no machine document in %s (looked for %v)", path, candidates)
}

func interpreterOptions(cfg config.Config, logger *slog.Logger, hooks domain.LifecycleHooks) []runtime.Option {
	opts := []runtime.Option{
		runtime.WithLogger(logger),
		runtime.WithLifecycleHooks(hooks),
	}
	if cfg.MaxMicrosteps > 0 {
		opts = append(opts, runtime.WithMaxMicrosteps(cfg.MaxMicrosteps))
	}
	return opts
}
