package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"

	meridian "github.com/meridiandb/meridian-go"
	"github.com/meridiandb/meridian-go/internal/wire"
)

// upsertOp is the write half of the bench workload's scripted KV
// traffic: an unconditional upsert of an arbitrary byte value, the
// way any application-level "set" request would implement KVOp.
type upsertOp struct {
	bucket string
	key    []byte
	value  []byte
}

func (o *upsertOp) Service() meridian.ServiceTag { return meridian.ServiceKeyValue }
func (o *upsertOp) Idempotent() bool             { return true }
func (o *upsertOp) Opcode() wire.Opcode          { return wire.OpUpsert }
func (o *upsertOp) BucketName() string           { return o.bucket }
func (o *upsertOp) CollectionPath() string       { return "" }
func (o *upsertOp) Key() []byte                  { return o.key }

func (o *upsertOp) Encode(_ context.Context, _ uint32) (extras, value []byte, datatype byte, err error) {
	extras = make([]byte, 8) // flags + expiry, both zero for the bench workload
	binary.BigEndian.PutUint32(extras[0:4], 0)
	binary.BigEndian.PutUint32(extras[4:8], 0)
	return extras, o.value, 0, nil
}

func (o *upsertOp) Decode(*wire.Frame) error { return nil }

// getOp is the read half: a plain get by key.
type getOp struct {
	bucket string
	key    []byte
	Value  []byte
}

func (o *getOp) Service() meridian.ServiceTag { return meridian.ServiceKeyValue }
func (o *getOp) Idempotent() bool             { return true }
func (o *getOp) Opcode() wire.Opcode          { return wire.OpGet }
func (o *getOp) BucketName() string           { return o.bucket }
func (o *getOp) CollectionPath() string       { return "" }
func (o *getOp) Key() []byte                  { return o.key }

func (o *getOp) Encode(context.Context, uint32) (extras, value []byte, datatype byte, err error) {
	return nil, nil, 0, nil
}

func (o *getOp) Decode(frame *wire.Frame) error {
	o.Value = frame.Value
	return nil
}

// queryOp demonstrates the HTTPOp side of the workload for the query
// service — the bench CLI issues these if --with-query is set, to
// exercise the HTTP session pool (C4) alongside the KV path.
type queryOp struct {
	statement string
	mode      meridian.PreparedStatementMode
	result    []byte
}

func (o *queryOp) Service() meridian.ServiceTag { return meridian.ServiceQuery }
func (o *queryOp) Idempotent() bool             { return true }
func (o *queryOp) Method() string               { return http.MethodPost }
func (o *queryOp) Path() string                 { return "/query/service" }
func (o *queryOp) ContentType() string          { return "application/json" }

// Body prepares the statement per the cluster's advertised capability
// (REDESIGN FLAG R2): auto_execute when the cluster supports enhanced
// prepared statements, a bare PREPARE otherwise.
func (o *queryOp) Body() ([]byte, error) {
	if o.mode == meridian.PreparedStatementAutoExecute {
		return []byte(fmt.Sprintf(`{"statement":"PREPARE %s","auto_execute":true}`, o.statement)), nil
	}
	return []byte(fmt.Sprintf(`{"statement":%q}`, "PREPARE "+o.statement)), nil
}

func (o *queryOp) DecodeResponse(resp *http.Response) error {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	o.result = buf
	return nil
}
