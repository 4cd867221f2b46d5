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

// CreateResource persists a new resource, assigning its id when empty and
// rejecting duplicate names within the kind.
func CreateResource[C, I any](s *BoltStore, kind types.ResourceKind, r *types.Resource[C, I]) error {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = NewID()
	}
	r.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		var exists error
		b.ForEach(func(k, v []byte) error {
			var probe struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := json.Unmarshal(v, &probe); err != nil {
				return nil
			}
			if probe.Name == r.Name && probe.ID != r.ID {
				exists = fmt.Errorf("%s named %q already exists", kind, r.Name)
			}
			return nil
		})
		if exists != nil {
			return exists
		}
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(r.ID), data)
	})
}

// SaveResource upserts a resource by id.
func SaveResource[C, I any](s *BoltStore, kind types.ResourceKind, r *types.Resource[C, I]) error {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(r.ID), data)
	})
}

// GetResource fetches one resource by id.
func GetResource[C, I any](s *BoltStore, kind types.ResourceKind, id string) (*types.Resource[C, I], error) {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return nil, err
	}
	var r types.Resource[C, I]
	found := false
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, errs.Storage("get "+string(kind), err)
	}
	if !found {
		return nil, errs.NotFound(string(kind), id)
	}
	return &r, nil
}

// GetResourceByName fetches one resource by its kind-unique name.
func GetResourceByName[C, I any](s *BoltStore, kind types.ResourceKind, name string) (*types.Resource[C, I], error) {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return nil, err
	}
	var found *types.Resource[C, I]
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.ForEach(func(k, v []byte) error {
			var r types.Resource[C, I]
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Name == name {
				found = &r
			}
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("get "+string(kind)+" by name", err)
	}
	if found == nil {
		return nil, errs.NotFound(string(kind), name)
	}
	return found, nil
}

// FindResource resolves by id first, then by name.
func FindResource[C, I any](s *BoltStore, kind types.ResourceKind, nameOrID string) (*types.Resource[C, I], error) {
	if r, err := GetResource[C, I](s, kind, nameOrID); err == nil {
		return r, nil
	}
	return GetResourceByName[C, I](s, kind, nameOrID)
}

// ListResources returns every resource of the kind sorted by name.
func ListResources[C, I any](s *BoltStore, kind types.ResourceKind) ([]*types.Resource[C, I], error) {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return nil, err
	}
	var out []*types.Resource[C, I]
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.ForEach(func(k, v []byte) error {
			var r types.Resource[C, I]
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list "+string(kind), err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteResource removes a resource row. Associated cleanup (containers,
// permissions) is the caller's job and runs before this.
func (s *BoltStore) DeleteResource(kind types.ResourceKind, id string) error {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id))
	})
	if err != nil {
		return errs.Storage("delete "+string(kind), err)
	}
	return nil
}

// ResourceName resolves a resource id to its name without decoding the
// full config.
func (s *BoltStore) ResourceName(kind types.ResourceKind, id string) (string, error) {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return "", err
	}
	var name string
	found := false
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		var probe struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return err
		}
		name = probe.Name
		found = true
		return nil
	})
	if err != nil {
		return "", errs.Storage("resolve "+string(kind)+" name", err)
	}
	if !found {
		return "", errs.NotFound(string(kind), id)
	}
	return name, nil
}

// ResourceNames returns the id→name table for one kind.
func (s *BoltStore) ResourceNames(kind types.ResourceKind) (map[string]string, error) {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var probe struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := json.Unmarshal(v, &probe); err != nil {
				return err
			}
			names[probe.ID] = probe.Name
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list "+string(kind)+" names", err)
	}
	return names, nil
}

// ResourceHead is the identity slice of a resource row: enough to match
// names and compute permission levels without decoding the config.
type ResourceHead struct {
	ID   string
	Name string
	Base types.PermissionLevel
}

// ResourceHeads returns the id, name and base permission of every
// resource of the kind.
func (s *BoltStore) ResourceHeads(kind types.ResourceKind) ([]ResourceHead, error) {
	bucket, err := bucketForKind(kind)
	if err != nil {
		return nil, err
	}
	var heads []ResourceHead
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var probe struct {
				ID   string                `json:"id"`
				Name string                `json:"name"`
				Base types.PermissionLevel `json:"base_permission"`
			}
			if err := json.Unmarshal(v, &probe); err != nil {
				return err
			}
			heads = append(heads, ResourceHead{ID: probe.ID, Name: probe.Name, Base: probe.Base})
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage("list "+string(kind)+" heads", err)
	}
	return heads, nil
}

// AllResourceNames returns id→name tables for every kind, used to build
// the id↔name maps at the top of each sync operation.
func (s *BoltStore) AllResourceNames() (map[types.ResourceKind]map[string]string, error) {
	out := map[types.ResourceKind]map[string]string{}
	for kind := range kindBuckets {
		names, err := s.ResourceNames(kind)
		if err != nil {
			return nil, err
		}
		out[kind] = names
	}
	return out, nil
}
