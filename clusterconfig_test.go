package meridian

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridiandb/meridian-go/internal/partition"
)

func TestVersion_Newer(t *testing.T) {
	cases := []struct {
		name  string
		v     Version
		other Version
		newer bool
	}{
		{"same epoch higher rev", Version{Epoch: 1, Rev: 5}, Version{Epoch: 1, Rev: 4}, true},
		{"same epoch equal rev", Version{Epoch: 1, Rev: 5}, Version{Epoch: 1, Rev: 5}, false},
		{"same epoch lower rev", Version{Epoch: 1, Rev: 3}, Version{Epoch: 1, Rev: 4}, false},
		{"higher epoch wins regardless of rev", Version{Epoch: 2, Rev: 0}, Version{Epoch: 1, Rev: 999}, true},
		{"lower epoch loses regardless of rev", Version{Epoch: 1, Rev: 999}, Version{Epoch: 2, Rev: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.newer, tc.v.Newer(tc.other))
		})
	}
}

func TestClusterConfig_Supersedes(t *testing.T) {
	older := &ClusterConfig{Version: Version{Epoch: 0, Rev: 1}}
	newer := &ClusterConfig{Version: Version{Epoch: 0, Rev: 2}}

	assert.True(t, newer.Supersedes(older))
	assert.False(t, older.Supersedes(newer))
	assert.True(t, older.Supersedes(nil))
}

func TestClusterConfig_CapabilityLookup(t *testing.T) {
	cfg := &ClusterConfig{
		BucketCapabilities:  map[BucketCapability]bool{CapCollections: true},
		ClusterCapabilities: map[ClusterCapability]bool{CapN1QLIndexAdvisor: true},
	}

	assert.True(t, cfg.HasBucketCapability(CapCollections))
	assert.False(t, cfg.HasBucketCapability(CapDurableWrite))
	assert.True(t, cfg.HasClusterCapability(CapN1QLIndexAdvisor))
	assert.False(t, cfg.HasClusterCapability(CapN1QLCostBasedOptimizer))

	var nilCfg *ClusterConfig
	assert.False(t, nilCfg.HasBucketCapability(CapCollections))
	assert.False(t, nilCfg.HasClusterCapability(CapN1QLIndexAdvisor))
}

func TestClusterConfig_PreparedStatementMode(t *testing.T) {
	withCap := &ClusterConfig{
		ClusterCapabilities: map[ClusterCapability]bool{CapN1QLEnhancedPreparedStatements: true},
	}
	assert.Equal(t, PreparedStatementAutoExecute, withCap.PreparedStatementMode())

	withoutCap := &ClusterConfig{
		ClusterCapabilities: map[ClusterCapability]bool{CapN1QLIndexAdvisor: true},
	}
	assert.Equal(t, PreparedStatementExtractPlan, withoutCap.PreparedStatementMode())

	var nilCfg *ClusterConfig
	assert.Equal(t, PreparedStatementExtractPlan, nilCfg.PreparedStatementMode())
}

func TestMutationToken_String(t *testing.T) {
	tok := MutationToken{Bucket: "b", PartitionID: 42, PartitionUUID: 0xABCD, SequenceNumber: 7}
	assert.Equal(t, "b/42@43981:7", tok.String())
}

func TestClusterConfig_PartitionRoutingIntegration(t *testing.T) {
	cfg := &ClusterConfig{
		Version: Version{Epoch: 0, Rev: 1},
		Partitions: partition.Map{
			{0, 1},
			{1, 0},
		},
	}
	p := partition.Of([]byte("hello"), len(cfg.Partitions))
	assert.GreaterOrEqual(t, cfg.Partitions.ActiveNode(p), -1)
}
