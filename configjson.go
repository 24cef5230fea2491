package meridian

import (
	"encoding/json"
	"fmt"

	"github.com/meridiandb/meridian-go/internal/partition"
)

// wireClusterConfig is the JSON shape a node's get_cluster_config (or
// a not_my_vbucket body, or a server-pushed configuration frame)
// carries. Field names are Meridian's own — this is not a literal
// reproduction of any vendor's wire JSON, since original_source/ only
// retained the opcode header (cmd_get_cluster_config.hxx), not the
// JSON schema itself.
type wireClusterConfig struct {
	RevEpoch    uint64              `json:"rev_epoch"`
	Rev         uint64              `json:"rev"`
	Nodes       []wireNode          `json:"nodes"`
	Partitions  [][]int             `json:"partitions"`
	BucketCaps  []string            `json:"bucket_capabilities"`
	ClusterCaps []string            `json:"cluster_capabilities"`
	BucketName  string              `json:"bucket_name"`
}

type wireNode struct {
	Hostname          string                    `json:"hostname"`
	Services          wireServicePorts          `json:"services"`
	ServicesTLS       wireServicePorts          `json:"services_tls"`
	AlternateNetworks map[string]wireAltNetwork `json:"alternate_networks"`
}

type wireAltNetwork struct {
	Hostname    string           `json:"hostname"`
	Services    wireServicePorts `json:"services"`
	ServicesTLS wireServicePorts `json:"services_tls"`
}

type wireServicePorts struct {
	KV         uint16 `json:"kv"`
	Query      uint16 `json:"n1ql"`
	Analytics  uint16 `json:"cbas"`
	Search     uint16 `json:"fts"`
	Views      uint16 `json:"capi"`
	Management uint16 `json:"mgmt"`
}

// DecodeClusterConfig parses a wire configuration body into a
// ClusterConfig, per spec.md §4.3's "request the current cluster
// configuration and install it" and the not-my-partition path's
// "if the body is a JSON configuration, adopt it".
func DecodeClusterConfig(body []byte) (*ClusterConfig, error) {
	var wc wireClusterConfig
	if err := json.Unmarshal(body, &wc); err != nil {
		return nil, fmt.Errorf("meridian: decode cluster configuration: %w", err)
	}

	nodes := make([]Node, len(wc.Nodes))
	for i, n := range wc.Nodes {
		node := Node{
			Hostname: n.Hostname,
			KV:       ServicePorts{Plain: n.Services.KV, TLS: n.ServicesTLS.KV},
			Query:    ServicePorts{Plain: n.Services.Query, TLS: n.ServicesTLS.Query},
			Analytics: ServicePorts{Plain: n.Services.Analytics, TLS: n.ServicesTLS.Analytics},
			Search:   ServicePorts{Plain: n.Services.Search, TLS: n.ServicesTLS.Search},
			Views:    ServicePorts{Plain: n.Services.Views, TLS: n.ServicesTLS.Views},
			Management: ServicePorts{Plain: n.Services.Management, TLS: n.ServicesTLS.Management},
		}
		if len(n.AlternateNetworks) > 0 {
			node.AlternateNetworks = make(map[string]Node, len(n.AlternateNetworks))
			for name, alt := range n.AlternateNetworks {
				node.AlternateNetworks[name] = Node{
					Hostname: alt.Hostname,
					KV:       ServicePorts{Plain: alt.Services.KV, TLS: alt.ServicesTLS.KV},
					Query:    ServicePorts{Plain: alt.Services.Query, TLS: alt.ServicesTLS.Query},
					Analytics: ServicePorts{Plain: alt.Services.Analytics, TLS: alt.ServicesTLS.Analytics},
					Search:   ServicePorts{Plain: alt.Services.Search, TLS: alt.ServicesTLS.Search},
					Views:    ServicePorts{Plain: alt.Services.Views, TLS: alt.ServicesTLS.Views},
					Management: ServicePorts{Plain: alt.Services.Management, TLS: alt.ServicesTLS.Management},
				}
			}
		}
		nodes[i] = node
	}

	pm := make(partition.Map, len(wc.Partitions))
	for i, row := range wc.Partitions {
		pm[i] = row
	}

	cfg := &ClusterConfig{
		Version:              Version{Epoch: wc.RevEpoch, Rev: wc.Rev},
		Nodes:                nodes,
		Partitions:           pm,
		BucketCapabilities:   make(map[BucketCapability]bool, len(wc.BucketCaps)),
		ClusterCapabilities:  make(map[ClusterCapability]bool, len(wc.ClusterCaps)),
		BucketName:           wc.BucketName,
	}
	for _, c := range wc.BucketCaps {
		cfg.BucketCapabilities[BucketCapability(c)] = true
	}
	for _, c := range wc.ClusterCaps {
		cfg.ClusterCapabilities[ClusterCapability(c)] = true
	}
	return cfg, nil
}
