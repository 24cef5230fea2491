package connstr

import (
	"context"
	"errors"
	"sync"
)

// ErrExhausted is returned by Origin.Next once every bootstrap node has
// been handed out since the last Restart. Grounded on
// original_source/ext/couchbase/origin.hxx's exhausted()/restart() pair —
// spec.md §4.1 calls this "an observable state [that] requires explicit
// restart" rather than an implicit wraparound.
var ErrExhausted = errors.New("connstr: bootstrap node list exhausted")

// Address is one resolved bootstrap target.
type Address struct {
	Host string
	Port uint16
	Mode Mode
}

// Origin holds credentials and a round-robin iterator over the
// bootstrap node list extracted from a Parsed connection string.
type Origin struct {
	mu       sync.Mutex
	username string
	password string
	nodes    []Address
	next     int
	exhausted bool
}

// NewOrigin builds an Origin from decoded credentials and a Parsed
// connection string.
func NewOrigin(username, password string, parsed *Parsed) *Origin {
	nodes := make([]Address, len(parsed.Nodes))
	for i, n := range parsed.Nodes {
		mode := n.Mode
		if mode == ModeUnspecified {
			mode = parsed.DefaultMode
		}
		nodes[i] = Address{Host: n.Host, Port: n.Port, Mode: mode}
	}
	return &Origin{username: username, password: password, nodes: nodes}
}

func (o *Origin) Username() string { return o.username }
func (o *Origin) Password() string { return o.password }

// Nodes returns the full bootstrap list, unaffected by iteration state.
func (o *Origin) Nodes() []Address {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Address, len(o.nodes))
	copy(out, o.nodes)
	return out
}

// Next returns the next bootstrap address in round-robin order. Once
// every node has been returned, Next reports ErrExhausted and the
// caller must call Restart before the iterator will yield again — it
// does not silently wrap.
func (o *Origin) Next(ctx context.Context) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.exhausted {
		return Address{}, ErrExhausted
	}
	if len(o.nodes) == 0 {
		return Address{}, ErrExhausted
	}

	addr := o.nodes[o.next]
	o.next++
	if o.next >= len(o.nodes) {
		o.exhausted = true
	}
	return addr, nil
}

// Exhausted reports whether the iterator has yielded every node since
// the last Restart.
func (o *Origin) Exhausted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exhausted
}

// Restart resets the iterator to the beginning of the node list.
func (o *Origin) Restart() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next = 0
	o.exhausted = false
}
