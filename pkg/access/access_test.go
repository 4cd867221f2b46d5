package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

func newChecker(t *testing.T) (*Checker, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewChecker(store), store
}

func TestSyncUserBypasses(t *testing.T) {
	c, _ := newChecker(t)
	level, err := c.Level(types.SyncUserID, types.ResourceTarget{Type: types.KindDeployment, ID: "d1"}, types.PermissionNone)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionWrite, level)
}

func TestAdminBypasses(t *testing.T) {
	c, store := newChecker(t)
	admin := &types.User{Username: "root", Admin: true}
	require.NoError(t, store.CreateUser(admin))

	level, err := c.Level(admin.ID, types.ResourceTarget{Type: types.KindStack, ID: "s1"}, types.PermissionNone)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionWrite, level)
}

func TestDirectGrantCombinesWithBase(t *testing.T) {
	c, store := newChecker(t)
	u := &types.User{Username: "dev"}
	require.NoError(t, store.CreateUser(u))

	target := types.ResourceTarget{Type: types.KindDeployment, ID: "d1"}

	level, err := c.Level(u.ID, target, types.PermissionRead)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionRead, level)

	require.NoError(t, store.SavePermission(&types.Permission{
		UserTarget: types.UserTarget{Type: types.UserTargetUser, ID: u.ID},
		Resource:   target,
		Level:      types.PermissionExecute,
	}))

	level, err = c.Level(u.ID, target, types.PermissionRead)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionExecute, level)

	// A grant lower than the base never lowers the effective level.
	level, err = c.Level(u.ID, target, types.PermissionWrite)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionWrite, level)
}

func TestGroupGrant(t *testing.T) {
	c, store := newChecker(t)
	u := &types.User{Username: "dev"}
	require.NoError(t, store.CreateUser(u))

	g := &types.UserGroup{Name: "devs", Users: []string{u.ID}}
	require.NoError(t, store.SaveUserGroup(g))

	target := types.ResourceTarget{Type: types.KindBuild, ID: "b1"}
	require.NoError(t, store.SavePermission(&types.Permission{
		UserTarget: types.UserTarget{Type: types.UserTargetGroup, ID: g.ID},
		Resource:   target,
		Level:      types.PermissionExecute,
	}))

	level, err := c.Level(u.ID, target, types.PermissionNone)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionExecute, level)

	// A user outside the group gets nothing from it.
	other := &types.User{Username: "outsider"}
	require.NoError(t, store.CreateUser(other))
	level, err = c.Level(other.ID, target, types.PermissionNone)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionNone, level)
}

func TestRequire(t *testing.T) {
	c, store := newChecker(t)
	u := &types.User{Username: "dev"}
	require.NoError(t, store.CreateUser(u))

	target := types.ResourceTarget{Type: types.KindDeployment, ID: "d1"}

	err := c.Require(u.ID, target, types.PermissionRead, types.PermissionExecute)
	require.Error(t, err)
	assert.Equal(t, errs.KindPermissionDenied, errs.KindOf(err))

	assert.NoError(t, c.Require(u.ID, target, types.PermissionExecute, types.PermissionExecute))
}

func TestUnknownUser(t *testing.T) {
	c, _ := newChecker(t)
	_, err := c.Level("ghost", types.ResourceTarget{Type: types.KindServer, ID: "s"}, types.PermissionNone)
	assert.Error(t, err)
}
