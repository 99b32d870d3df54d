package unit

import (
	"context"
	"errors"
	"testing"

	"github.com/jroosing/labnet/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Runtime = (*Memory)(nil)
var _ Runtime = (*Containerd)(nil)

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	exists, _, err := m.Status(ctx, "dns-server-1")
	require.NoError(t, err)
	assert.False(t, exists)

	spec := Spec{Name: "dns-server-1", Image: "bind9", Mounts: []Mount{{Source: "/tmp/x", Target: "/etc/bind"}}}
	require.NoError(t, m.Create(ctx, spec))
	assert.Error(t, m.Create(ctx, spec))

	exists, state, err := m.Status(ctx, "dns-server-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, StateStopped, state)

	_, err = m.PID(ctx, "dns-server-1")
	assert.True(t, errs.Is(err, errs.ExternalTool))

	require.NoError(t, m.Start(ctx, "dns-server-1"))
	pid, err := m.PID(ctx, "dns-server-1")
	require.NoError(t, err)
	assert.Positive(t, pid)

	require.NoError(t, m.Start(ctx, "dns-server-1"))
	again, _ := m.PID(ctx, "dns-server-1")
	assert.Equal(t, pid, again, "starting a running unit is a no-op")

	_, state, _ = m.Status(ctx, "dns-server-1")
	assert.Equal(t, StateRunning, state)

	require.NoError(t, m.Stop(ctx, "dns-server-1"))
	_, state, _ = m.Status(ctx, "dns-server-1")
	assert.Equal(t, StateStopped, state)

	got, ok := m.Spec("dns-server-1")
	require.True(t, ok)
	assert.Equal(t, "/etc/bind", got.Mounts[0].Target)

	require.NoError(t, m.Delete(ctx, "dns-server-1"))
	require.NoError(t, m.Delete(ctx, "dns-server-1"))
	assert.Equal(t, 0, m.Len())
}

func TestMemory_MissingUnit(t *testing.T) {
	m := NewMemory()
	err := m.Start(context.Background(), "ghost")
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestMemory_FailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.FailOn("Create", errors.New("image pull failed"))

	err := m.Create(ctx, Spec{Name: "u"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ExternalTool))
	assert.Equal(t, 0, m.Len())

	m.FailOn("Create", nil)
	require.NoError(t, m.Create(ctx, Spec{Name: "u"}))
}
