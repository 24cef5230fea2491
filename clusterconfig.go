// Package meridian is the public entry point: Connect a Cluster, open
// Buckets, and Submit key-value or HTTP-service operations against
// them. The dispatch and transport core this package wires together
// lives in the internal/ packages; this file holds the shared data
// model spec.md §3 describes (cluster configuration, capabilities, and
// mutation tokens).
package meridian

import (
	"fmt"

	"github.com/meridiandb/meridian-go/internal/partition"
)

// BucketCapability is one member of the closed per-bucket capability
// vocabulary, grounded on original_source/ext/couchbase/capabilities.hxx.
type BucketCapability string

const (
	CapCouchAPI              BucketCapability = "couchapi"
	CapXattr                 BucketCapability = "xattr"
	CapDCP                   BucketCapability = "dcp"
	CapCBHello               BucketCapability = "cbhello"
	CapTouch                 BucketCapability = "touch"
	CapCCCP                  BucketCapability = "cccp"
	CapXDCRCheckpointing     BucketCapability = "xdcr_checkpointing"
	CapNodesExt              BucketCapability = "nodes_ext"
	CapCollections           BucketCapability = "collections"
	CapDurableWrite          BucketCapability = "durable_write"
	CapTombstonedUserXattrs  BucketCapability = "tombstoned_user_xattrs"
)

// ClusterCapability is one member of the closed cluster-wide (query
// service) capability vocabulary.
type ClusterCapability string

const (
	CapN1QLCostBasedOptimizer        ClusterCapability = "n1ql_cost_based_optimizer"
	CapN1QLIndexAdvisor              ClusterCapability = "n1ql_index_advisor"
	CapN1QLJavascriptFunctions       ClusterCapability = "n1ql_javascript_functions"
	CapN1QLInlineFunctions           ClusterCapability = "n1ql_inline_functions"
	CapN1QLEnhancedPreparedStatements ClusterCapability = "n1ql_enhanced_prepared_statements"
)

// ServicePorts holds the plain and TLS port for one service on one node.
type ServicePorts struct {
	Plain uint16
	TLS   uint16
}

// Node is one member of a cluster configuration's node list.
type Node struct {
	Hostname        string
	KV              ServicePorts
	Query            ServicePorts
	Analytics        ServicePorts
	Search           ServicePorts
	Views            ServicePorts
	Management       ServicePorts
	AlternateNetworks map[string]Node // keyed by network name, e.g. "external"
}

// Version is the (rev_epoch, rev) pair spec.md §3 says makes
// configurations comparable: strictly greater supersedes.
type Version struct {
	Epoch uint64
	Rev   uint64
}

// Newer reports whether v is strictly greater than other.
func (v Version) Newer(other Version) bool {
	if v.Epoch != other.Epoch {
		return v.Epoch > other.Epoch
	}
	return v.Rev > other.Rev
}

// ClusterConfig is an immutable snapshot of cluster topology. A newer
// configuration replaces an older one wholesale — never mutated in
// place, per spec.md §3's "A configuration is replaced, not mutated."
type ClusterConfig struct {
	Version             Version
	Nodes               []Node
	Partitions          partition.Map
	BucketCapabilities  map[BucketCapability]bool
	ClusterCapabilities map[ClusterCapability]bool
	BucketName          string
}

// Supersedes reports whether cfg is strictly newer than other (or other
// is nil, in which case any configuration supersedes it).
func (cfg *ClusterConfig) Supersedes(other *ClusterConfig) bool {
	if other == nil {
		return true
	}
	return cfg.Version.Newer(other.Version)
}

// HasBucketCapability reports whether cfg declares the named bucket
// capability.
func (cfg *ClusterConfig) HasBucketCapability(c BucketCapability) bool {
	return cfg != nil && cfg.BucketCapabilities[c]
}

// HasClusterCapability reports whether cfg declares the named cluster
// capability.
func (cfg *ClusterConfig) HasClusterCapability(c ClusterCapability) bool {
	return cfg != nil && cfg.ClusterCapabilities[c]
}

// PreparedStatementMode is the query-service prepared-statement
// codepath a caller's query Op should follow when preparing a
// statement it hasn't cached a plan for yet (REDESIGN FLAG R2):
// decided from the cluster's advertised capability set, never from a
// server-version string compare.
type PreparedStatementMode int

const (
	// PreparedStatementExtractPlan issues a bare PREPARE and expects
	// the caller to fetch the resulting encoded_plan in a follow-up
	// execute, per document_query.hxx's extract_encoded_plan_ branch.
	PreparedStatementExtractPlan PreparedStatementMode = iota
	// PreparedStatementAutoExecute sets auto_execute on the PREPARE
	// body so the server prepares and runs the statement in the same
	// round trip, per document_query.hxx's
	// supports_enhanced_prepared_statements() branch.
	PreparedStatementAutoExecute
)

// PreparedStatementMode reports which codepath cfg's cluster supports.
func (cfg *ClusterConfig) PreparedStatementMode() PreparedStatementMode {
	if cfg.HasClusterCapability(CapN1QLEnhancedPreparedStatements) {
		return PreparedStatementAutoExecute
	}
	return PreparedStatementExtractPlan
}

// MutationToken proves a mutation reached a specific partition at a
// specific sequence number, for read-your-writes consistency on
// non-key-value services (spec.md §3).
type MutationToken struct {
	Bucket          string
	PartitionID     int
	PartitionUUID   uint64
	SequenceNumber  uint64
}

func (t MutationToken) String() string {
	return fmt.Sprintf("%s/%d@%d:%d", t.Bucket, t.PartitionID, t.PartitionUUID, t.SequenceNumber)
}
