package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

func newStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResourceCRUD(t *testing.T) {
	s := newStore(t)

	d := &types.Deployment{}
	d.Name = "api"
	d.Config = types.DefaultDeploymentConfig()
	d.Config.ServerID = "srv-1"

	require.NoError(t, CreateResource(s, types.KindDeployment, d))
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.UpdatedAt.IsZero())

	got, err := GetResource[types.DeploymentConfig, types.DeploymentInfo](s, types.KindDeployment, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "api", got.Name)
	assert.Equal(t, "srv-1", got.Config.ServerID)

	got.Config.Network = "host"
	require.NoError(t, SaveResource(s, types.KindDeployment, got))

	again, err := GetResource[types.DeploymentConfig, types.DeploymentInfo](s, types.KindDeployment, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "host", again.Config.Network)

	require.NoError(t, s.DeleteResource(types.KindDeployment, d.ID))
	_, err = GetResource[types.DeploymentConfig, types.DeploymentInfo](s, types.KindDeployment, d.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestCreateResourceRejectsDuplicateNames(t *testing.T) {
	s := newStore(t)

	a := &types.Server{}
	a.Name = "prod-1"
	require.NoError(t, CreateResource(s, types.KindServer, a))

	b := &types.Server{}
	b.Name = "prod-1"
	assert.Error(t, CreateResource(s, types.KindServer, b))

	// Same name in a different kind is fine.
	st := &types.Stack{}
	st.Name = "prod-1"
	assert.NoError(t, CreateResource(s, types.KindStack, st))
}

func TestFindResource(t *testing.T) {
	s := newStore(t)

	b := &types.Build{}
	b.Name = "api-build"
	require.NoError(t, CreateResource(s, types.KindBuild, b))

	byID, err := FindResource[types.BuildConfig, types.BuildInfo](s, types.KindBuild, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byID.ID)

	byName, err := FindResource[types.BuildConfig, types.BuildInfo](s, types.KindBuild, "api-build")
	require.NoError(t, err)
	assert.Equal(t, b.ID, byName.ID)

	_, err = FindResource[types.BuildConfig, types.BuildInfo](s, types.KindBuild, "ghost")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestListResourcesSortedByName(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r := &types.Repo{}
		r.Name = name
		require.NoError(t, CreateResource(s, types.KindRepo, r))
	}

	list, err := ListResources[types.RepoConfig, types.RepoInfo](s, types.KindRepo)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestResourceNames(t *testing.T) {
	s := newStore(t)
	d := &types.Deployment{}
	d.Name = "api"
	require.NoError(t, CreateResource(s, types.KindDeployment, d))

	names, err := s.ResourceNames(types.KindDeployment)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{d.ID: "api"}, names)

	all, err := s.AllResourceNames()
	require.NoError(t, err)
	assert.Equal(t, "api", all[types.KindDeployment][d.ID])
	assert.Empty(t, all[types.KindStack])
}

func TestPermissions(t *testing.T) {
	s := newStore(t)

	target := types.UserTarget{Type: types.UserTargetUser, ID: "u1"}
	resource := types.ResourceTarget{Type: types.KindDeployment, ID: "d1"}
	require.NoError(t, s.SavePermission(&types.Permission{
		UserTarget: target, Resource: resource, Level: types.PermissionExecute,
	}))
	require.NoError(t, s.SavePermission(&types.Permission{
		UserTarget: target,
		Resource:   types.ResourceTarget{Type: types.KindStack, ID: "s1"},
		Level:      types.PermissionRead,
	}))
	require.NoError(t, s.SavePermission(&types.Permission{
		UserTarget: types.UserTarget{Type: types.UserTargetUser, ID: "u2"},
		Resource:   resource,
		Level:      types.PermissionWrite,
	}))

	perms, err := s.ListPermissionsFor(target)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	// Deleting the resource removes its rows for every user target.
	require.NoError(t, s.DeletePermissionsForResource(resource))

	perms, err = s.ListPermissionsFor(target)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, types.KindStack, perms[0].Resource.Type)
}

func TestUsersAndSyncUser(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.EnsureSyncUser())
	sync, err := s.GetUser(types.SyncUserID)
	require.NoError(t, err)
	assert.True(t, sync.Admin)

	// Idempotent.
	require.NoError(t, s.EnsureSyncUser())

	u := &types.User{Username: "alice"}
	require.NoError(t, s.CreateUser(u))
	byName, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
}

func TestVariables(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SaveVariable(&types.Variable{Name: "REGION", Value: "us-east-1"}))
	require.NoError(t, s.SaveVariable(&types.Variable{Name: "TOKEN", Value: "x", IsSecret: true}))

	v, err := s.GetVariable("REGION")
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", v.Value)

	list, err := s.ListVariables()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteVariable("REGION"))
	_, err = s.GetVariable("REGION")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestTags(t *testing.T) {
	s := newStore(t)

	tag, err := s.EnsureTag("prod")
	require.NoError(t, err)
	assert.NotEmpty(t, tag.ID)

	again, err := s.EnsureTag("prod")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, again.ID)

	tags, err := s.ListTags()
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestUserGroups(t *testing.T) {
	s := newStore(t)

	g := &types.UserGroup{Name: "devs", Users: []string{"u1"}}
	require.NoError(t, s.SaveUserGroup(g))
	assert.NotEmpty(t, g.ID)

	byName, err := s.GetUserGroupByName("devs")
	require.NoError(t, err)
	assert.Equal(t, g.ID, byName.ID)

	require.NoError(t, s.DeleteUserGroup(g.ID))
	_, err = s.GetUserGroupByName("devs")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestUpdates(t *testing.T) {
	s := newStore(t)

	u := &types.Update{
		ID:        NewID(),
		Operation: types.OpDeploy,
		Target:    types.ResourceTarget{Type: types.KindDeployment, ID: "d1"},
		Status:    types.UpdateInProgress,
	}
	require.NoError(t, s.CreateUpdate(u))

	u.PushLog(types.SimpleLog("Deploy", "ok"))
	u.Finalize()
	require.NoError(t, s.SaveUpdate(u))

	got, err := s.GetUpdate(u.ID)
	require.NoError(t, err)
	assert.True(t, got.Success)
	require.Len(t, got.Logs, 1)

	target := u.Target
	list, err := s.ListUpdates(&target)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other := types.ResourceTarget{Type: types.KindStack, ID: "nope"}
	list, err = s.ListUpdates(&other)
	require.NoError(t, err)
	assert.Empty(t, list)
}
