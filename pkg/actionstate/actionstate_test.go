package actionstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

func TestAcquireConflict(t *testing.T) {
	reg := NewRegistry()

	g, err := reg.Acquire(types.KindDeployment, "d1", func(f *Flags) { f.Deploying = true })
	require.NoError(t, err)

	_, err = reg.Acquire(types.KindDeployment, "d1", func(f *Flags) { f.Deploying = true })
	require.Error(t, err)
	assert.Equal(t, errs.KindResourceBusy, errs.KindOf(err))

	g.Release()

	g2, err := reg.Acquire(types.KindDeployment, "d1", func(f *Flags) { f.Deploying = true })
	require.NoError(t, err)
	g2.Release()
}

func TestAcquireDisjointFlags(t *testing.T) {
	reg := NewRegistry()

	g1, err := reg.Acquire(types.KindStack, "s1", func(f *Flags) { f.Pulling = true })
	require.NoError(t, err)
	defer g1.Release()

	// A different flag family on the same resource is not blocked.
	g2, err := reg.Acquire(types.KindStack, "s1", func(f *Flags) { f.Renaming = true })
	require.NoError(t, err)
	defer g2.Release()

	// A different resource with the same flag is not blocked either.
	g3, err := reg.Acquire(types.KindStack, "s2", func(f *Flags) { f.Pulling = true })
	require.NoError(t, err)
	defer g3.Release()
}

func TestAcquireFailureMutatesNothing(t *testing.T) {
	reg := NewRegistry()

	g, err := reg.Acquire(types.KindBuild, "b1", func(f *Flags) { f.Building = true })
	require.NoError(t, err)
	defer g.Release()

	// Multi-flag acquire where one flag conflicts must not set the other.
	_, err = reg.Acquire(types.KindBuild, "b1", func(f *Flags) {
		f.Building = true
		f.Cancelling = true
	})
	require.Error(t, err)

	g2, err := reg.Acquire(types.KindBuild, "b1", func(f *Flags) { f.Cancelling = true })
	require.NoError(t, err)
	g2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	g, err := reg.Acquire(types.KindServer, "srv", func(f *Flags) { f.Deleting = true })
	require.NoError(t, err)
	g.Release()
	g.Release()

	flags := reg.Get(types.KindServer, "srv")
	assert.False(t, flags.Deleting)
}

func TestNilGuardRelease(t *testing.T) {
	var g *Guard
	g.Release()
}

func TestBusy(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Busy(types.KindRepo, "r1"))

	g, err := reg.Acquire(types.KindRepo, "r1", func(f *Flags) { f.Cloning = true })
	require.NoError(t, err)
	assert.True(t, reg.Busy(types.KindRepo, "r1"))

	g.Release()
	assert.False(t, reg.Busy(types.KindRepo, "r1"))
}

func TestClear(t *testing.T) {
	reg := NewRegistry()
	g, err := reg.Acquire(types.KindDeployment, "gone", func(f *Flags) { f.Destroying = true })
	require.NoError(t, err)
	_ = g

	reg.Clear(types.KindDeployment, "gone")
	assert.False(t, reg.Busy(types.KindDeployment, "gone"))
}
