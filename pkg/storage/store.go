package storage

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/komodohq/komodo/pkg/types"
)

var (
	// Resource buckets, one per kind
	bucketServers         = []byte("servers")
	bucketDeployments     = []byte("deployments")
	bucketStacks          = []byte("stacks")
	bucketBuilds          = []byte("builds")
	bucketRepos           = []byte("repos")
	bucketProcedures      = []byte("procedures")
	bucketActions         = []byte("actions")
	bucketResourceSyncs   = []byte("resource_syncs")
	bucketBuilders        = []byte("builders")
	bucketAlerters        = []byte("alerters")
	bucketServerTemplates = []byte("server_templates")

	// Entity buckets
	bucketUpdates     = []byte("updates")
	bucketAlerts      = []byte("alerts")
	bucketUsers       = []byte("users")
	bucketUserGroups  = []byte("user_groups")
	bucketPermissions = []byte("permissions")
	bucketVariables   = []byte("variables")
	bucketTags        = []byte("tags")
)

var kindBuckets = map[types.ResourceKind][]byte{
	types.KindServer:         bucketServers,
	types.KindDeployment:     bucketDeployments,
	types.KindStack:          bucketStacks,
	types.KindBuild:          bucketBuilds,
	types.KindRepo:           bucketRepos,
	types.KindProcedure:      bucketProcedures,
	types.KindAction:         bucketActions,
	types.KindResourceSync:   bucketResourceSyncs,
	types.KindBuilder:        bucketBuilders,
	types.KindAlerter:        bucketAlerters,
	types.KindServerTemplate: bucketServerTemplates,
}

// BoltStore persists all core state in a single BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "komodo.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketServers,
			bucketDeployments,
			bucketStacks,
			bucketBuilds,
			bucketRepos,
			bucketProcedures,
			bucketActions,
			bucketResourceSyncs,
			bucketBuilders,
			bucketAlerters,
			bucketServerTemplates,
			bucketUpdates,
			bucketAlerts,
			bucketUsers,
			bucketUserGroups,
			bucketPermissions,
			bucketVariables,
			bucketTags,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// NewID returns a fresh server-assigned resource id.
func NewID() string {
	return uuid.New().String()
}

func bucketForKind(kind types.ResourceKind) ([]byte, error) {
	b, ok := kindBuckets[kind]
	if !ok {
		return nil, fmt.Errorf("no bucket for resource kind %q", kind)
	}
	return b, nil
}
