package meridian

import (
	"time"

	"github.com/meridiandb/meridian-go/internal/kvengine"
)

// ClusterState summarizes the reachability of every endpoint Meridian
// currently holds open, grounded on
// original_source/ext/couchbase/diagnostics.hxx's cluster_state enum.
type ClusterState string

const (
	ClusterStateOnline   ClusterState = "online"
	ClusterStateDegraded ClusterState = "degraded"
	ClusterStateOffline  ClusterState = "offline"
)

// EndpointState mirrors diagnostics.hxx's endpoint_state: the
// lifecycle a single session or HTTP connection is in, independent of
// the richer kvengine.State a KV session tracks internally.
type EndpointState string

const (
	EndpointDisconnected EndpointState = "disconnected"
	EndpointConnecting   EndpointState = "connecting"
	EndpointConnected    EndpointState = "connected"
	EndpointDisconnecting EndpointState = "disconnecting"
)

// EndpointDiagnostic is a point-in-time report for one open connection.
type EndpointDiagnostic struct {
	Service      ServiceTag
	ID           string
	Remote       string
	Local        string
	State        EndpointState
	Bucket       string
	LastActivity time.Time
}

// DiagnosticsReport is the point-in-time snapshot Cluster.Diagnostics
// returns: every session's state, without contacting the network —
// diagnostics.hxx's "diagnostics_result" as distinguished from the
// network-probing "ping_result" (Cluster.Ping, a supplemented
// operation this port does not implement, since it would require
// issuing a round-trip per endpoint rather than reading local state).
type DiagnosticsReport struct {
	ID        string
	State     ClusterState
	Endpoints []EndpointDiagnostic
}

func kvSessionState(s kvengine.State) EndpointState {
	switch s {
	case kvengine.StateReady:
		return EndpointConnected
	case kvengine.StateClosing:
		return EndpointDisconnecting
	case kvengine.StateClosed, kvengine.StateDisconnected:
		return EndpointDisconnected
	default:
		return EndpointConnecting
	}
}

// Diagnostics reports the current state of every session this Cluster
// holds open — the configuration session and every bucket's per-node
// sessions — without performing any I/O.
func (c *Cluster) Diagnostics() DiagnosticsReport {
	c.mu.RLock()
	buckets := make([]*Bucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		buckets = append(buckets, b)
	}
	configSession := c.configSession
	c.mu.RUnlock()

	report := DiagnosticsReport{ID: c.parsed.Scheme + "/" + c.parsed.DefaultBucketName}

	if configSession != nil {
		report.Endpoints = append(report.Endpoints, EndpointDiagnostic{
			Service:      ServiceKeyValue,
			ID:           configSession.ID.String(),
			Remote:       configSession.RemoteAddr(),
			Local:        configSession.LocalAddr(),
			State:        kvSessionState(configSession.State()),
			LastActivity: configSession.LastActivity(),
		})
	}

	for _, b := range buckets {
		report.Endpoints = append(report.Endpoints, b.diagnostics()...)
	}

	report.State = summarizeState(report.Endpoints)
	return report
}

func summarizeState(endpoints []EndpointDiagnostic) ClusterState {
	if len(endpoints) == 0 {
		return ClusterStateOffline
	}
	connected, total := 0, len(endpoints)
	for _, e := range endpoints {
		if e.State == EndpointConnected {
			connected++
		}
	}
	switch {
	case connected == total:
		return ClusterStateOnline
	case connected == 0:
		return ClusterStateOffline
	default:
		return ClusterStateDegraded
	}
}
