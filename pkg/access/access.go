// Package access answers whether a user may act on a resource. Levels
// combine the resource's base permission with direct grants and grants
// through every user group the user belongs to; admins and the synthetic
// sync identity bypass checks.
package access

import (
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Checker resolves permission levels from the store.
type Checker struct {
	store *storage.BoltStore
}

// NewChecker builds a checker over the store.
func NewChecker(store *storage.BoltStore) *Checker {
	return &Checker{store: store}
}

// Level computes the effective permission userID holds on the target.
func (c *Checker) Level(userID string, target types.ResourceTarget, base types.PermissionLevel) (types.PermissionLevel, error) {
	if userID == types.SyncUserID {
		return types.PermissionWrite, nil
	}
	user, err := c.store.GetUser(userID)
	if err != nil {
		return types.PermissionNone, err
	}
	if user.Admin {
		return types.PermissionWrite, nil
	}

	level := base

	direct, err := c.store.ListPermissionsFor(types.UserTarget{Type: types.UserTargetUser, ID: userID})
	if err != nil {
		return types.PermissionNone, err
	}
	for _, p := range direct {
		if p.Resource == target {
			level = level.Max(p.Level)
		}
	}

	groups, err := c.store.ListUserGroups()
	if err != nil {
		return types.PermissionNone, err
	}
	for _, g := range groups {
		if !containsUser(g, userID) {
			continue
		}
		grants, err := c.store.ListPermissionsFor(types.UserTarget{Type: types.UserTargetGroup, ID: g.ID})
		if err != nil {
			return types.PermissionNone, err
		}
		for _, p := range grants {
			if p.Resource == target {
				level = level.Max(p.Level)
			}
		}
	}
	return level, nil
}

// Require fails with PermissionDenied unless the user holds at least
// the required level on the target.
func (c *Checker) Require(userID string, target types.ResourceTarget, base, required types.PermissionLevel) error {
	level, err := c.Level(userID, target, base)
	if err != nil {
		return err
	}
	if !level.Satisfies(required) {
		return errs.PermissionDenied("check permission", string(target.Type), target.ID, string(required))
	}
	return nil
}

func containsUser(g *types.UserGroup, userID string) bool {
	for _, id := range g.Users {
		if id == userID {
			return true
		}
	}
	return false
}
