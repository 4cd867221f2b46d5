package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

// Update operations

// CreateUpdate persists a fresh journal row, assigning its id.
func (s *BoltStore) CreateUpdate(u *types.Update) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return s.SaveUpdate(u)
}

// SaveUpdate flushes the row as it stands, logs included.
func (s *BoltStore) SaveUpdate(u *types.Update) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUpdates)
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return b.Put([]byte(u.ID), data)
	})
	if err != nil {
		return errs.Storage("save update", err)
	}
	return nil
}

func (s *BoltStore) GetUpdate(id string) (*types.Update, error) {
	var u types.Update
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUpdates).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &u)
	})
	if err != nil {
		return nil, errs.Storage("get update", err)
	}
	if !found {
		return nil, errs.NotFound("Update", id)
	}
	return &u, nil
}

// ListUpdates returns updates newest-first, optionally filtered to one
// target.
func (s *BoltStore) ListUpdates(target *types.ResourceTarget) ([]*types.Update, error) {
	var out []*types.Update
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpdates).ForEach(func(k, v []byte) error {
			var u types.Update
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			if target != nil && u.Target != *target {
				return nil
			}
			out = append(out, &u)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list updates", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTS.After(out[j].StartTS) })
	return out, nil
}

// Alert operations

func (s *BoltStore) SaveAlert(a *types.Alert) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.OpenedAt.IsZero() {
		a.OpenedAt = time.Now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.ID), data)
	})
	if err != nil {
		return errs.Storage("save alert", err)
	}
	return nil
}

func (s *BoltStore) GetAlert(id string) (*types.Alert, error) {
	var a types.Alert
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAlerts).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, errs.Storage("get alert", err)
	}
	if !found {
		return nil, errs.NotFound("Alert", id)
	}
	return &a, nil
}

// ListAlerts returns alerts newest-first. When openOnly is set, resolved
// alerts are skipped.
func (s *BoltStore) ListAlerts(openOnly bool) ([]*types.Alert, error) {
	var out []*types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(k, v []byte) error {
			var a types.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if openOnly && a.Resolved {
				return nil
			}
			out = append(out, &a)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list alerts", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out, nil
}

// User operations

func (s *BoltStore) CreateUser(u *types.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return b.Put([]byte(u.ID), data)
	})
	if err != nil {
		return errs.Storage("create user", err)
	}
	return nil
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var u types.User
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &u)
	})
	if err != nil {
		return nil, errs.Storage("get user", err)
	}
	if !found {
		return nil, errs.NotFound("User", id)
	}
	return &u, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u types.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			if u.Username == username {
				found = &u
			}
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("get user by username", err)
	}
	if found == nil {
		return nil, errs.NotFound("User", username)
	}
	return found, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var out []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u types.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			out = append(out, &u)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list users", err)
	}
	return out, nil
}

// EnsureSyncUser creates the synthetic sync identity when missing. Sync
// executions and post-build fan-out run under it.
func (s *BoltStore) EnsureSyncUser() error {
	_, err := s.GetUser(types.SyncUserID)
	if err == nil {
		return nil
	}
	if !errs.IsKind(err, errs.KindNotFound) {
		return err
	}
	return s.CreateUser(&types.User{
		ID:       types.SyncUserID,
		Username: "sync",
		Admin:    true,
	})
}

// UserGroup operations

func (s *BoltStore) SaveUserGroup(g *types.UserGroup) error {
	if g.ID == "" {
		g.ID = NewID()
	}
	g.UpdatedAt = time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUserGroups)
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return b.Put([]byte(g.ID), data)
	})
	if err != nil {
		return errs.Storage("save user group", err)
	}
	return nil
}

func (s *BoltStore) GetUserGroup(id string) (*types.UserGroup, error) {
	var g types.UserGroup
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUserGroups).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &g)
	})
	if err != nil {
		return nil, errs.Storage("get user group", err)
	}
	if !found {
		return nil, errs.NotFound("UserGroup", id)
	}
	return &g, nil
}

func (s *BoltStore) GetUserGroupByName(name string) (*types.UserGroup, error) {
	groups, err := s.ListUserGroups()
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, errs.NotFound("UserGroup", name)
}

func (s *BoltStore) ListUserGroups() ([]*types.UserGroup, error) {
	var out []*types.UserGroup
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUserGroups).ForEach(func(k, v []byte) error {
			var g types.UserGroup
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			out = append(out, &g)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list user groups", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *BoltStore) DeleteUserGroup(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUserGroups).Delete([]byte(id))
	})
	if err != nil {
		return errs.Storage("delete user group", err)
	}
	return nil
}

// Permission operations. Keyed by (user target, resource target) so
// writes are natural upserts.

func permissionKey(p *types.Permission) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s",
		p.UserTarget.Type, p.UserTarget.ID, p.Resource.Type, p.Resource.ID))
}

func (s *BoltStore) SavePermission(p *types.Permission) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPermissions)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put(permissionKey(p), data)
	})
	if err != nil {
		return errs.Storage("save permission", err)
	}
	return nil
}

func (s *BoltStore) DeletePermission(p *types.Permission) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPermissions).Delete(permissionKey(p))
	})
	if err != nil {
		return errs.Storage("delete permission", err)
	}
	return nil
}

// ListPermissionsFor returns every permission granted to the user target.
func (s *BoltStore) ListPermissionsFor(ut types.UserTarget) ([]*types.Permission, error) {
	prefix := []byte(fmt.Sprintf("%s:%s:", ut.Type, ut.ID))
	var out []*types.Permission
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPermissions).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var p types.Permission
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Storage("list permissions", err)
	}
	return out, nil
}

// DeletePermissionsForResource drops every permission row naming the
// resource. Runs as part of resource deletion.
func (s *BoltStore) DeletePermissionsForResource(target types.ResourceTarget) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPermissions)
		var keys [][]byte
		b.ForEach(func(k, v []byte) error {
			var p types.Permission
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if p.Resource == target {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.Storage("delete resource permissions", err)
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Variable operations, keyed by name.

func (s *BoltStore) SaveVariable(v *types.Variable) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVariables)
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(v.Name), data)
	})
	if err != nil {
		return errs.Storage("save variable", err)
	}
	return nil
}

func (s *BoltStore) GetVariable(name string) (*types.Variable, error) {
	var v types.Variable
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVariables).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, errs.Storage("get variable", err)
	}
	if !found {
		return nil, errs.NotFound("Variable", name)
	}
	return &v, nil
}

func (s *BoltStore) ListVariables() ([]*types.Variable, error) {
	var out []*types.Variable
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVariables).ForEach(func(k, v []byte) error {
			var item types.Variable
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			out = append(out, &item)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list variables", err)
	}
	return out, nil
}

func (s *BoltStore) DeleteVariable(name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVariables).Delete([]byte(name))
	})
	if err != nil {
		return errs.Storage("delete variable", err)
	}
	return nil
}

// Tag operations

func (s *BoltStore) CreateTag(t *types.Tag) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTags)
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.ID), data)
	})
	if err != nil {
		return errs.Storage("create tag", err)
	}
	return nil
}

func (s *BoltStore) GetTag(id string) (*types.Tag, error) {
	var t types.Tag
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTags).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, errs.Storage("get tag", err)
	}
	if !found {
		return nil, errs.NotFound("Tag", id)
	}
	return &t, nil
}

func (s *BoltStore) GetTagByName(name string) (*types.Tag, error) {
	tags, err := s.ListTags()
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, errs.NotFound("Tag", name)
}

func (s *BoltStore) ListTags() ([]*types.Tag, error) {
	var out []*types.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTags).ForEach(func(k, v []byte) error {
			var t types.Tag
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list tags", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// EnsureTag resolves a tag by name, creating it when missing.
func (s *BoltStore) EnsureTag(name string) (*types.Tag, error) {
	t, err := s.GetTagByName(name)
	if err == nil {
		return t, nil
	}
	if !errs.IsKind(err, errs.KindNotFound) {
		return nil, err
	}
	t = &types.Tag{Name: name}
	if err := s.CreateTag(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *BoltStore) DeleteTag(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTags).Delete([]byte(id))
	})
	if err != nil {
		return errs.Storage("delete tag", err)
	}
	return nil
}
