package syncer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/manifest"
	"github.com/komodohq/komodo/pkg/types"
)

// applyUserGroups reconciles [[user_group]] blocks: membership and the
// permission bindings under each group. Permission targets name
// resources; \regex\ targets expand across the kind at sync time. Like
// variables, groups are deleted only when the sync owns them outright.
func (s *Syncer) applyUserGroups(sync *types.ResourceSync, incoming []manifest.UserGroupToml, tables *nameTables, u *types.Update) {
	if sync.Config.MatchResourceType != "" {
		return
	}
	if len(incoming) == 0 && !sync.Config.Managed && !sync.Config.Delete {
		return
	}

	existing, err := s.eng.Store.ListUserGroups()
	if err != nil {
		u.PushError("Sync UserGroups", err)
		return
	}
	byName := map[string]*types.UserGroup{}
	for _, g := range existing {
		byName[g.Name] = g
	}

	var infoLines, errLines []string
	incomingNames := map[string]bool{}

	for _, item := range incoming {
		if item.Name == "" {
			errLines = append(errLines, "skipped a user_group with no name")
			continue
		}
		if !matchName(sync, item.Name) {
			continue
		}
		incomingNames[item.Name] = true

		userIDs, missing := s.resolveUsers(item.Users)
		for _, username := range missing {
			errLines = append(errLines, fmt.Sprintf("%s: user %q not found", item.Name, username))
		}
		permissions, err := expandPermissions(item.Permissions, tables)
		if err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}

		group, exists := byName[item.Name]
		if exists && equalStringSets(group.Users, userIDs) && equalPermissions(group.Permissions, permissions) {
			infoLines = append(infoLines, fmt.Sprintf("%s: no changes", item.Name))
			continue
		}
		if !exists {
			group = &types.UserGroup{Name: item.Name}
		}

		previous := group.Permissions
		group.Users = userIDs
		group.Permissions = permissions
		if err := s.eng.Store.SaveUserGroup(group); err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		if err := s.rebindGroupPermissions(group, previous); err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		if exists {
			infoLines = append(infoLines, fmt.Sprintf("updated %s", item.Name))
		} else {
			infoLines = append(infoLines, fmt.Sprintf("created %s", item.Name))
		}
	}

	if (sync.Config.Managed || sync.Config.Delete) && len(sync.Config.MatchTags) == 0 {
		for name, group := range byName {
			if incomingNames[name] || !matchName(sync, name) {
				continue
			}
			if err := s.rebindGroupPermissions(&types.UserGroup{ID: group.ID}, group.Permissions); err != nil {
				errLines = append(errLines, fmt.Sprintf("delete %s: %v", name, err))
				continue
			}
			if err := s.eng.Store.DeleteUserGroup(group.ID); err != nil {
				errLines = append(errLines, fmt.Sprintf("delete %s: %v", name, err))
				continue
			}
			infoLines = append(infoLines, fmt.Sprintf("deleted %s", name))
		}
	}

	stdout := "no changes"
	if len(infoLines) > 0 {
		stdout = strings.Join(infoLines, "\n")
	}
	u.PushLog(types.Log{
		Stage:   "Sync UserGroups",
		Stdout:  stdout,
		Stderr:  strings.Join(errLines, "\n"),
		Success: len(errLines) == 0,
		StartTS: u.StartTS,
		EndTS:   u.StartTS,
	})
}

// resolveUsers maps usernames to user ids, reporting the missing ones.
func (s *Syncer) resolveUsers(usernames []string) (ids, missing []string) {
	for _, username := range usernames {
		user, err := s.eng.Store.GetUserByUsername(username)
		if err != nil {
			missing = append(missing, username)
			continue
		}
		ids = append(ids, user.ID)
	}
	sort.Strings(ids)
	return ids, missing
}

// expandPermissions resolves permission targets to resource ids. A
// target id wrapped in backslashes expands as a regex over every
// resource name of its kind.
func expandPermissions(perms []types.PermissionToml, tables *nameTables) ([]types.PermissionToml, error) {
	var out []types.PermissionToml
	for _, p := range perms {
		ref := p.Target.ID
		if len(ref) >= 2 && strings.HasPrefix(ref, `\`) && strings.HasSuffix(ref, `\`) {
			re, err := regexp.Compile(ref[1 : len(ref)-1])
			if err != nil {
				return nil, errs.InvalidConfig("expand permissions", "invalid regex target %s: %v", ref, err)
			}
			for name, id := range tables.nameToID[p.Target.Type] {
				if re.MatchString(name) {
					out = append(out, types.PermissionToml{
						Target: types.ResourceTarget{Type: p.Target.Type, ID: id},
						Level:  p.Level,
					})
				}
			}
			continue
		}
		if id, ok := tables.namesToIDs(string(p.Target.Type), ref); ok {
			ref = id
		}
		out = append(out, types.PermissionToml{
			Target: types.ResourceTarget{Type: p.Target.Type, ID: ref},
			Level:  p.Level,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target.Type != out[j].Target.Type {
			return out[i].Target.Type < out[j].Target.Type
		}
		return out[i].Target.ID < out[j].Target.ID
	})
	return out, nil
}

func equalPermissions(a, b []types.PermissionToml) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rebindGroupPermissions writes the group's permission rows and removes
// bindings the group no longer carries.
func (s *Syncer) rebindGroupPermissions(group *types.UserGroup, previous []types.PermissionToml) error {
	target := types.UserTarget{Type: types.UserTargetGroup, ID: group.ID}
	current := map[types.ResourceTarget]bool{}
	for _, p := range group.Permissions {
		current[p.Target] = true
		perm := &types.Permission{UserTarget: target, Resource: p.Target, Level: p.Level}
		if err := s.eng.Store.SavePermission(perm); err != nil {
			return err
		}
	}
	for _, p := range previous {
		if current[p.Target] {
			continue
		}
		perm := &types.Permission{UserTarget: target, Resource: p.Target, Level: p.Level}
		if err := s.eng.Store.DeletePermission(perm); err != nil {
			return err
		}
	}
	return nil
}
