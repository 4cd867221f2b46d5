/*
Package storage provides BoltDB-backed persistence for Komodo's core state.

All resources, the update journal, alerts, users, user groups,
permissions, variables and tags live in one BoltDB file under separate
buckets. Values are JSON; resource buckets are keyed by server-assigned
id.

	┌──────────────────── BOLTDB STORAGE ────────────────────┐
	│                                                          │
	│  BoltStore: <dataDir>/komodo.db                          │
	│                                                          │
	│  Resource buckets (key = resource id)                    │
	│    servers  deployments  stacks  builds  repos           │
	│    procedures  actions  resource_syncs  builders         │
	│    alerters  server_templates                            │
	│                                                          │
	│  Entity buckets                                          │
	│    updates      (key = update id, logs embedded)         │
	│    alerts       (key = alert id)                         │
	│    users        (key = user id)                          │
	│    user_groups  (key = group id)                         │
	│    permissions  (key = user-target:resource-target)      │
	│    variables    (key = variable name)                    │
	│    tags         (key = tag id)                           │
	└──────────────────────────────────────────────────────────┘

Resource access goes through generic package functions
(GetResource, ListResources, SaveResource, ...) because every kind
shares the Resource[Config, Info] container. Go interfaces cannot carry
generic methods, so there is no Store interface: callers hold *BoltStore
and tests open a store in a temp dir.

Reads use db.View, writes db.Update; bbolt gives single-writer ACID
semantics which is enough for the core's write rates. Missing rows
surface as errs.KindNotFound, broken transactions as errs.KindStorage.
*/
package storage
