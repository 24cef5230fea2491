package kvengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meridiandb/meridian-go/internal/errmap"
	"github.com/meridiandb/meridian-go/internal/scram"
	"github.com/meridiandb/meridian-go/internal/wire"
)

// defaultHandshakeTimeout bounds each individual handshake round trip;
// the overall Bootstrap call is additionally subject to ctx.
const defaultHandshakeTimeout = 10 * time.Second

// doRequest sends frame and blocks for its matching response (or ctx
// cancellation, or the per-call timeout), per spec.md §4.3's
// request/response round trip used by every handshake step.
func (s *Session) doRequest(ctx context.Context, frame *wire.Frame) (*wire.Frame, error) {
	frame.Opaque = s.nextOpaqueValue()
	encoded, err := wire.EncodeRequest(frame)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan struct {
		frame *wire.Frame
		err   error
	}, 1)

	op := &PendingOperation{
		Opaque:   frame.Opaque,
		Deadline: time.Now().Add(defaultHandshakeTimeout),
		Request:  frame,
		handler: func(f *wire.Frame, err error) {
			resultCh <- struct {
				frame *wire.Frame
				err   error
			}{f, err}
		},
	}

	if err := s.writeAndSubscribe(ctx, op, encoded); err != nil {
		return nil, err
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		if result.frame.Status() != wire.StatusSuccess {
			return result.frame, fmt.Errorf("kvengine: %s returned status %s", frame.Opcode, result.frame.Status())
		}
		return result.frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hello performs the Hello feature-negotiation step (spec.md §4.3 step
// 3): request the fixed RequestedFeatures list, return whatever subset
// the server echoes back as accepted.
func (s *Session) hello(ctx context.Context) ([]wire.HelloFeature, error) {
	req := &wire.Frame{
		Opcode: wire.OpHello,
		Key:    []byte("meridian-go"),
		Value:  wire.EncodeFeatures(wire.RequestedFeatures),
	}
	resp, err := s.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return wire.DecodeFeatures(resp.Value), nil
}

// fetchErrorMap retrieves and parses the server's error map (spec.md
// §4.3 step 4), used afterward by Classify to reinterpret otherwise
// unrecognized statuses.
func (s *Session) fetchErrorMap(ctx context.Context) (*errmap.Map, error) {
	req := &wire.Frame{
		Opcode: wire.OpGetErrorMap,
		Value:  []byte{0x00, 0x01}, // requested error map version, big-endian uint16
	}
	resp, err := s.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return errmap.Parse(resp.Value)
}

// authenticate runs a full SCRAM exchange for mechanism to completion
// via sasl_auth (client-first) followed by zero or more sasl_step
// round trips (spec.md §4.3 step 5, grounded on
// original_source/ext/couchbase/cbsasl/client.cc's auth loop).
func (s *Session) authenticate(ctx context.Context, mechanism scram.Mechanism) error {
	client, err := scram.NewClient(mechanism, s.opts.Username, s.opts.Password)
	if err != nil {
		return err
	}

	clientFirst := client.Start()
	req := &wire.Frame{
		Opcode: wire.OpSASLAuth,
		Key:    []byte(mechanism),
		Value:  []byte(clientFirst),
	}
	resp, authErr := s.doRequest(ctx, req)
	for {
		if authErr == nil {
			if client.Done() {
				return nil
			}
			return fmt.Errorf("kvengine: server reported auth success before client completed SCRAM")
		}

		// StatusAuthContinue (wrapped as an error by doRequest) carries
		// the server's next challenge in resp.Value; any other failure
		// status is terminal.
		if resp == nil || resp.Status() != wire.StatusAuthContinue {
			return authErr
		}

		next, stepErr := client.Step(string(resp.Value))
		if stepErr != nil {
			return fmt.Errorf("kvengine: SCRAM step: %w", stepErr)
		}
		if client.Done() {
			return nil
		}

		stepReq := &wire.Frame{
			Opcode: wire.OpSASLStep,
			Key:    []byte(mechanism),
			Value:  []byte(next),
		}
		resp, authErr = s.doRequest(ctx, stepReq)
	}
}

// selectBucket issues select_bucket for name (spec.md §4.3 step 6).
func (s *Session) selectBucket(ctx context.Context, name string) error {
	req := &wire.Frame{Opcode: wire.OpSelectBucket, Key: []byte(name)}
	_, err := s.doRequest(ctx, req)
	return err
}

// fetchClusterConfig retrieves the initial cluster configuration
// (spec.md §4.3 step 7) and forwards it through OnConfig exactly as a
// server-pushed configuration would be, so the owning Bucket/Cluster
// has one code path for "config changed" regardless of source.
func (s *Session) fetchClusterConfig(ctx context.Context) error {
	req := &wire.Frame{Opcode: wire.OpGetClusterConfig}
	resp, err := s.doRequest(ctx, req)
	if err != nil {
		return err
	}
	if s.opts.OnConfig != nil {
		s.opts.OnConfig(ClusterConfigNotification{Body: resp.Value, SourceHost: s.conn.RemoteAddr().String()})
	}
	return nil
}

// listSASLMechanisms issues sasl_list_mechs and splits the
// space-separated mechanism list the server returns, for use by
// scram.BestMechanism.
func (s *Session) listSASLMechanisms(ctx context.Context) ([]string, error) {
	req := &wire.Frame{Opcode: wire.OpSASLListMechs}
	resp, err := s.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(resp.Value)), nil
}

// collectionManifestUID extracts the "uid" field from a
// get_collections_manifest response body, used by higher layers that
// need to detect a stale manifest without re-parsing the whole thing.
func collectionManifestUID(body []byte) (string, error) {
	var manifest struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("kvengine: decode collections manifest: %w", err)
	}
	return manifest.UID, nil
}

// CollectionsManifestUID fetches the bucket's current collections
// manifest and returns its uid, for diagnostic logging when a
// collection keeps resolving to unknown_collection — distinguishes a
// manifest the server hasn't applied yet from a genuinely missing
// scope/collection.
func (s *Session) CollectionsManifestUID(ctx context.Context) (string, error) {
	resp, err := s.doRequest(ctx, &wire.Frame{Opcode: wire.OpGetCollectionsManifest})
	if err != nil {
		return "", err
	}
	return collectionManifestUID(resp.Value)
}
