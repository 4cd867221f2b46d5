/*
Package types defines the core data structures used throughout Komodo.

This package contains the domain model shared by every other package:
the generic resource envelope, the eleven resource kinds and their
configs, updates and their logs, users, permissions, tags, and
variables. These types are used for persistence, the sync TOML format,
and periphery communication.

# Resources

Every managed entity is a Resource[Config, Info] with a stable id, a
unique name, user-editable Config, and engine-written Info. The kinds,
in sync execution order, are listed in AllResourceKinds.

# Updates

Every operation produces an Update holding staged logs. An update is
finalized exactly once; its Success flag is the conjunction of its log
successes.

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type ResourceKind string
	  const (
	      KindDeployment ResourceKind = "Deployment"
	      KindStack      ResourceKind = "Stack"
	  )

Config/Info Split:

	Config is what users declare (and what syncs diff); Info is what
	the engine observed (deployed hashes, timestamps, remote
	contents). Syncs never write Info; executions never accept Info
	from callers.

# Thread Safety

Types here carry no locking. The storage layer synchronizes persisted
state; in-memory caches implement their own locking.
*/
package types
