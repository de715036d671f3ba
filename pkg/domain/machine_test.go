package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMachine_IndexesPathsAndKinds(t *testing.T) {
	root := &domain.Node{ID: "agent", Children: []*domain.Node{
		{ID: "idle", On: []*domain.Transition{domain.On("START", "work")}},
		{ID: "work", Kind: domain.KindParallel, Children: []*domain.Node{
			{ID: "left", Children: []*domain.Node{{ID: "a"}, {ID: "done", Kind: domain.KindFinal}}},
			{ID: "right", Children: []*domain.Node{{ID: "b"}, {ID: "done", Kind: domain.KindFinal}}},
		}},
	}}

	m, err := domain.NewMachine(root)
	require.NoError(t, err)
	assert.Equal(t, "agent", m.ID)

	n, ok := m.Node("work.left.done")
	require.True(t, ok)
	assert.Equal(t, domain.KindFinal, n.Kind)
	assert.Equal(t, 3, n.Depth())
	assert.Equal(t, "work.left", n.Parent().Path())

	left, _ := m.Node("work.left")
	assert.Equal(t, domain.KindCompound, left.Kind)
	assert.Equal(t, "a", left.InitialChild().ID)

	idle, _ := m.Node("idle")
	assert.Equal(t, domain.KindAtomic, idle.Kind)
	require.Len(t, idle.On[0].TargetNodes(), 1)
	assert.Equal(t, "work", idle.On[0].TargetNodes()[0].Path())

	var paths []string
	for _, n := range m.Nodes() {
		paths = append(paths, n.Path())
	}
	assert.Equal(t, []string{
		"idle", "work",
		"work.left", "work.left.a", "work.left.done",
		"work.right", "work.right.b", "work.right.done",
	}, paths)
}

func TestNewMachine_TargetResolution(t *testing.T) {
	toAbs := domain.On("ABS", "#outer.inner.y")
	toChild := domain.On("CHILD", ".inner")
	toSibling := domain.On("SIB", "x")
	toAncestorSibling := domain.On("UP", "other")

	root := &domain.Node{ID: "m", Children: []*domain.Node{
		{ID: "outer", On: []*domain.Transition{toChild}, Children: []*domain.Node{
			{ID: "inner", Children: []*domain.Node{
				{ID: "x", On: []*domain.Transition{toAbs, toAncestorSibling}},
				{ID: "y", On: []*domain.Transition{toSibling}},
			}},
		}},
		{ID: "other"},
	}}
	_, err := domain.NewMachine(root)
	require.NoError(t, err)

	assert.Equal(t, "outer.inner.y", toAbs.TargetNodes()[0].Path())
	assert.Equal(t, "outer.inner", toChild.TargetNodes()[0].Path())
	assert.Equal(t, "outer.inner.x", toSibling.TargetNodes()[0].Path())
	assert.Equal(t, "other", toAncestorSibling.TargetNodes()[0].Path())
}

func TestNewMachine_InvokeHandlers(t *testing.T) {
	inv := &domain.Invoke{
		ID:      "fetch",
		Src:     func(context.Context, any) (any, error) { return nil, nil },
		OnDone:  []*domain.Transition{domain.Always("ok")},
		OnError: []*domain.Transition{domain.Always("failed")},
	}
	root := &domain.Node{ID: "m", Children: []*domain.Node{
		{ID: "loading", Invoke: inv},
		{ID: "ok", Kind: domain.KindFinal},
		{ID: "failed", Kind: domain.KindFinal},
	}}
	m, err := domain.NewMachine(root)
	require.NoError(t, err)

	loading, _ := m.Node("loading")
	require.Len(t, loading.Handlers(), 2)
	assert.Equal(t, "done.invoke.fetch", loading.Handlers()[0].Event)
	assert.Equal(t, "error.invoke.fetch", loading.Handlers()[1].Event)

	owner, ok := m.InvokeOwner("fetch")
	require.True(t, ok)
	assert.Same(t, loading, owner)
}

func TestNewMachine_Validation(t *testing.T) {
	tests := []struct {
		name string
		root *domain.Node
		code string
	}{
		{
			name: "no states",
			root: &domain.Node{ID: "m"},
			code: domain.ErrCodeNoStates,
		},
		{
			name: "atomic root",
			root: &domain.Node{ID: "m", Kind: domain.KindAtomic, Children: []*domain.Node{{ID: "a"}}},
			code: domain.ErrCodeRootKind,
		},
		{
			name: "duplicate sibling",
			root: &domain.Node{ID: "m", Children: []*domain.Node{{ID: "a"}, {ID: "a"}}},
			code: domain.ErrCodeDuplicateState,
		},
		{
			name: "dotted id",
			root: &domain.Node{ID: "m", Children: []*domain.Node{{ID: "a.b"}}},
			code: domain.ErrCodeInvalidID,
		},
		{
			name: "unknown target",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", On: []*domain.Transition{domain.On("GO", "nowhere")}},
			}},
			code: domain.ErrCodeInvalidTarget,
		},
		{
			name: "conflicting targets",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", On: []*domain.Transition{domain.On("GO", "b", "c")}},
				{ID: "b"},
				{ID: "c"},
			}},
			code: domain.ErrCodeInvalidTarget,
		},
		{
			name: "bad initial",
			root: &domain.Node{ID: "m", Initial: "zzz", Children: []*domain.Node{{ID: "a"}}},
			code: domain.ErrCodeCompoundInvalidInitial,
		},
		{
			name: "final with transitions",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "end", Kind: domain.KindFinal, On: []*domain.Transition{domain.On("GO", "end")}},
			}},
			code: domain.ErrCodeFinalTransitions,
		},
		{
			name: "invoke without service",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", Invoke: &domain.Invoke{ID: "x"}},
			}},
			code: domain.ErrCodeInvalidInvoke,
		},
		{
			name: "duplicate invoke",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", Invoke: &domain.Invoke{ID: "x", Src: noopService}},
				{ID: "b", Invoke: &domain.Invoke{ID: "x", Src: noopService}},
			}},
			code: domain.ErrCodeDuplicateInvoke,
		},
		{
			name: "incomplete action",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", Entry: []domain.Action{{Kind: domain.ActionAssign, Name: "broken"}}},
			}},
			code: domain.ErrCodeMissingAction,
		},
		{
			name: "unbound guard",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", On: []*domain.Transition{{Event: "GO", GuardName: "isReady"}}},
			}},
			code: domain.ErrCodeMissingGuard,
		},
		{
			name: "spawn without machine",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "a", Entry: []domain.Action{domain.SpawnActor(domain.SpawnSpec{ID: "child"})}},
			}},
			code: domain.ErrCodeInvalidSpawn,
		},
		{
			name: "final region",
			root: &domain.Node{ID: "m", Children: []*domain.Node{
				{ID: "p", Kind: domain.KindParallel, Children: []*domain.Node{{ID: "r", Kind: domain.KindFinal}}},
			}},
			code: domain.ErrCodeInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := domain.NewMachine(tt.root)
			require.Error(t, err)
			assert.Nil(t, m)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.HasCode(tt.code), "expected %s in %v", tt.code, verr)
		})
	}
}

func TestNewMachine_ParallelTargetsAllowed(t *testing.T) {
	root := &domain.Node{ID: "m", Children: []*domain.Node{
		{ID: "idle", On: []*domain.Transition{domain.On("GO", "#p.r1.b", "#p.r2.d")}},
		{ID: "p", Kind: domain.KindParallel, Children: []*domain.Node{
			{ID: "r1", Children: []*domain.Node{{ID: "a"}, {ID: "b"}}},
			{ID: "r2", Children: []*domain.Node{{ID: "c"}, {ID: "d"}}},
		}},
	}}
	_, err := domain.NewMachine(root)
	require.NoError(t, err)
}

func TestMachine_InitialContext(t *testing.T) {
	root := func() *domain.Node {
		return &domain.Node{ID: "m", Children: []*domain.Node{{ID: "a"}}}
	}

	t.Run("default copies map input", func(t *testing.T) {
		m, err := domain.NewMachine(root())
		require.NoError(t, err)
		in := map[string]any{"x": 1}
		ctx, err := m.InitialContext(in)
		require.NoError(t, err)
		assert.Equal(t, domain.Context{"x": 1}, ctx)

		ctx["x"] = 2
		assert.Equal(t, 1, in["x"])
	})

	t.Run("scalar input stored under input", func(t *testing.T) {
		m, err := domain.NewMachine(root())
		require.NoError(t, err)
		ctx, err := m.InitialContext("hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", ctx.String("input"))
	})

	t.Run("initial context merged with input", func(t *testing.T) {
		m, err := domain.NewMachine(root(), domain.WithInitialContext(domain.Context{"count": 0, "name": "n"}))
		require.NoError(t, err)
		ctx, err := m.InitialContext(map[string]any{"count": 3})
		require.NoError(t, err)
		assert.Equal(t, domain.Context{"count": 3, "name": "n"}, ctx)
	})

	t.Run("factory error wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		m, err := domain.NewMachine(root(), domain.WithContext(func(any) (domain.Context, error) { return nil, boom }))
		require.NoError(t, err)
		_, err = m.InitialContext(nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("output", func(t *testing.T) {
		m, err := domain.NewMachine(root(), domain.WithOutput(func(c domain.Context) any { return c["result"] }))
		require.NoError(t, err)
		assert.Equal(t, 42, m.ComputeOutput(domain.Context{"result": 42}))
	})
}

func noopService(context.Context, any) (any, error) { return nil, nil }
