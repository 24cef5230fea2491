package meridian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigJSON = `{
	"rev_epoch": 3,
	"rev": 12,
	"bucket_name": "b",
	"bucket_capabilities": ["collections", "xattr"],
	"cluster_capabilities": ["n1ql_index_advisor"],
	"nodes": [
		{
			"hostname": "node-a.example.com",
			"services": {"kv": 11210, "n1ql": 8093, "cbas": 8095, "fts": 8094, "capi": 8092, "mgmt": 8091},
			"services_tls": {"kv": 11207, "n1ql": 18093, "cbas": 18095, "fts": 18094, "capi": 18092, "mgmt": 18091},
			"alternate_networks": {
				"external": {
					"hostname": "node-a.external.example.com",
					"services": {"kv": 31210},
					"services_tls": {"kv": 31207}
				}
			}
		},
		{
			"hostname": "node-b.example.com",
			"services": {"kv": 11210},
			"services_tls": {"kv": 11207}
		}
	],
	"partitions": [[0, 1], [1, 0]]
}`

func TestDecodeClusterConfig_HappyPath(t *testing.T) {
	cfg, err := DecodeClusterConfig([]byte(sampleConfigJSON))
	require.NoError(t, err)

	assert.Equal(t, Version{Epoch: 3, Rev: 12}, cfg.Version)
	assert.Equal(t, "b", cfg.BucketName)
	require.Len(t, cfg.Nodes, 2)

	assert.Equal(t, "node-a.example.com", cfg.Nodes[0].Hostname)
	assert.Equal(t, uint16(11210), cfg.Nodes[0].KV.Plain)
	assert.Equal(t, uint16(11207), cfg.Nodes[0].KV.TLS)
	assert.Equal(t, uint16(8093), cfg.Nodes[0].Query.Plain)

	require.Contains(t, cfg.Nodes[0].AlternateNetworks, "external")
	assert.Equal(t, "node-a.external.example.com", cfg.Nodes[0].AlternateNetworks["external"].Hostname)
	assert.Equal(t, uint16(31210), cfg.Nodes[0].AlternateNetworks["external"].KV.Plain)

	assert.True(t, cfg.HasBucketCapability(CapCollections))
	assert.True(t, cfg.HasBucketCapability(CapXattr))
	assert.False(t, cfg.HasBucketCapability(CapDurableWrite))
	assert.True(t, cfg.HasClusterCapability(CapN1QLIndexAdvisor))

	require.Len(t, cfg.Partitions, 2)
	assert.Equal(t, 0, cfg.Partitions.ActiveNode(0))
	assert.Equal(t, 1, cfg.Partitions.ActiveNode(1))
}

func TestDecodeClusterConfig_MalformedJSON(t *testing.T) {
	_, err := DecodeClusterConfig([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeClusterConfig_NoAlternateNetworks(t *testing.T) {
	cfg, err := DecodeClusterConfig([]byte(`{"rev_epoch":0,"rev":1,"nodes":[{"hostname":"h","services":{"kv":11210}}],"partitions":[[0]]}`))
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 1)
	assert.Nil(t, cfg.Nodes[0].AlternateNetworks)
}
