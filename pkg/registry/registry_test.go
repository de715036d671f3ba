package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	r := registry.NewRegistry()
	r.RegisterGuard("always", func(domain.Context, domain.Event) (bool, error) { return true, nil })
	r.RegisterAction("mark", domain.Set("marked", true))
	r.RegisterService("echo", func(_ context.Context, in any) (any, error) { return in, nil })

	g, err := r.Guard("always")
	require.NoError(t, err)
	ok, err := g(nil, domain.Event{})
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := r.Action("mark")
	require.NoError(t, err)
	assert.Equal(t, "mark", a.Name, "registered actions report their registered name")
	assert.Equal(t, domain.ActionAssign, a.Kind)

	out, err := r.Execute(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.Service("missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.ErrorContains(t, err, "service 'missing'")

	_, err = r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegistry_Names(t *testing.T) {
	r := registry.NewRegistry()
	r.RegisterInput("b", func(domain.Context, domain.Event) any { return nil })
	r.RegisterInput("a", func(domain.Context, domain.Event) any { return nil })
	r.RegisterOutput("result", func(domain.Context) any { return nil })

	names := r.Names()
	assert.Equal(t, []string{"a", "b"}, names["inputs"])
	assert.Equal(t, []string{"result"}, names["outputs"])
	assert.Empty(t, names["machines"])
}
