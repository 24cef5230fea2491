// Package connstr parses the cluster connection string described in
// spec.md §4.1: scheme://host[:port][=mode][,host…][/bucket][?k=v&…].
// Grounded on original_source/ext/couchbase/utils/connection_string.hxx,
// re-expressed with net/url and strings instead of a PEG grammar —
// Go's standard library already covers URI scheme/query splitting, so
// only the comma-separated host list and per-host mode tag need a
// hand-written scan.
package connstr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Mode fixes how bootstrap proceeds from a given seed node.
type Mode int

const (
	ModeUnspecified Mode = iota
	ModeGCCCP
	ModeHTTP
)

func (m Mode) String() string {
	switch m {
	case ModeGCCCP:
		return "gcccp"
	case ModeHTTP:
		return "http"
	default:
		return "unspecified"
	}
}

// Node is one bootstrap seed parsed out of the host list.
type Node struct {
	Host string
	Port uint16
	Mode Mode
}

// ParseWarning records a recoverable defect in the input — spec.md §4.1
// calls parse errors "non-fatal"; REDESIGN FLAG R1 additionally routes
// unknown mode tags through here instead of silently ignoring them as
// the original does.
type ParseWarning struct {
	Field   string
	Message string
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("connstr: %s: %s", w.Field, w.Message)
}

// Options holds the per-connection tunables carried as query parameters,
// mirroring the option keys utils/connection_string.hxx parses
// (kv_connect_timeout, resolve_timeout, network, trust_certificate,
// enable_dns_srv, show_queries, …) under Go-idiomatic names.
type Options struct {
	KVConnectTimeoutMS int
	ResolveTimeoutMS   int
	Network            string // "default" | "external" | "auto"
	TrustCertificate   string
	EnableDNSSRV       bool
	ShowQueriesInLog   bool
	Raw                url.Values
}

// Parsed is the result of Parse: a scheme-derived TLS/port default, the
// bootstrap node list, an optional default bucket, and any parameters.
type Parsed struct {
	Scheme            string
	TLS               bool
	DefaultPort       uint16
	DefaultMode       Mode
	Nodes             []Node
	DefaultBucketName string
	Options           Options
	Warnings          []ParseWarning
}

var schemeDefaults = map[string]struct {
	port uint16
	mode Mode
	tls  bool
}{
	"couchbase":  {11210, ModeGCCCP, false},
	"couchbases": {11207, ModeGCCCP, true},
	"http":       {8091, ModeHTTP, false},
	"https":      {18091, ModeHTTP, true},
}

var modeTags = map[string]Mode{
	"cccp":  ModeGCCCP,
	"gcccp": ModeGCCCP,
	"mcd":   ModeGCCCP,
	"http":  ModeHTTP,
}

// Parse decodes a connection string. A malformed scheme or empty input
// returns an error; everything else the original treats as silently
// acceptable (unknown mode tags, unrecognized query parameters) is
// instead surfaced as a ParseWarning on the returned value, per
// REDESIGN FLAG R1 — callers that care can inspect Parsed.Warnings,
// and callers that don't can ignore them exactly as before.
func Parse(input string) (*Parsed, error) {
	if input == "" {
		return nil, fmt.Errorf("connstr: empty input")
	}

	schemeSep := strings.Index(input, "://")
	if schemeSep < 0 {
		return nil, fmt.Errorf("connstr: missing scheme separator in %q", input)
	}
	scheme := strings.ToLower(input[:schemeSep])
	defaults, ok := schemeDefaults[scheme]
	if !ok {
		return nil, fmt.Errorf("connstr: unknown scheme %q", scheme)
	}

	rest := input[schemeSep+3:]

	var query string
	if qIdx := strings.IndexByte(rest, '?'); qIdx >= 0 {
		query = rest[qIdx+1:]
		rest = rest[:qIdx]
	}

	var bucket string
	if bIdx := strings.IndexByte(rest, '/'); bIdx >= 0 {
		bucket = rest[bIdx+1:]
		rest = rest[:bIdx]
	}

	p := &Parsed{
		Scheme:            scheme,
		TLS:               defaults.tls,
		DefaultPort:       defaults.port,
		DefaultMode:       defaults.mode,
		DefaultBucketName: bucket,
	}

	for _, hostPart := range strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == ';' }) {
		node, warn, err := parseNode(hostPart, defaults.port)
		if err != nil {
			return nil, err
		}
		if warn != nil {
			p.Warnings = append(p.Warnings, *warn)
		}
		p.Nodes = append(p.Nodes, node)
	}
	if len(p.Nodes) == 0 {
		return nil, fmt.Errorf("connstr: no bootstrap nodes in %q", input)
	}

	opts, warnings, err := parseOptions(query)
	if err != nil {
		return nil, err
	}
	p.Options = opts
	p.Warnings = append(p.Warnings, warnings...)

	return p, nil
}

func parseNode(s string, defaultPort uint16) (Node, *ParseWarning, error) {
	modeTag := ""
	if eq := strings.IndexByte(s, '='); eq >= 0 {
		modeTag = strings.ToLower(s[eq+1:])
		s = s[:eq]
	}

	host := s
	port := defaultPort
	if colon := strings.LastIndexByte(s, ':'); colon >= 0 && !strings.Contains(s[colon:], "]") {
		host = s[:colon]
		n, err := strconv.ParseUint(s[colon+1:], 10, 16)
		if err != nil {
			return Node{}, nil, fmt.Errorf("connstr: invalid port in node %q: %w", s, err)
		}
		port = uint16(n)
	}
	host = strings.Trim(host, "[]")

	node := Node{Host: host, Port: port}
	if modeTag == "" {
		return node, nil, nil
	}

	mode, known := modeTags[modeTag]
	if !known {
		// REDESIGN FLAG R1: unknown mode tags no longer vanish silently.
		return node, &ParseWarning{Field: "mode", Message: fmt.Sprintf("unrecognized mode tag %q on node %q, ignoring", modeTag, host)}, nil
	}
	node.Mode = mode
	return node, nil, nil
}

func parseOptions(query string) (Options, []ParseWarning, error) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return Options{}, nil, fmt.Errorf("connstr: invalid query parameters: %w", err)
	}

	opts := Options{Network: "default", Raw: values}
	var warnings []ParseWarning

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch key {
		case "kv_connect_timeout":
			opts.KVConnectTimeoutMS, err = parseMillis(v)
		case "resolve_timeout":
			opts.ResolveTimeoutMS, err = parseMillis(v)
		case "network":
			switch v {
			case "default", "external", "auto":
				opts.Network = v
			default:
				warnings = append(warnings, ParseWarning{Field: "network", Message: fmt.Sprintf("unrecognized network selector %q", v)})
			}
		case "trust_certificate":
			opts.TrustCertificate = v
		case "enable_dns_srv":
			opts.EnableDNSSRV, err = strconv.ParseBool(v)
		case "show_queries":
			opts.ShowQueriesInLog, err = strconv.ParseBool(v)
		default:
			warnings = append(warnings, ParseWarning{Field: key, Message: "unrecognized connection-string option"})
		}
		if err != nil {
			return Options{}, nil, fmt.Errorf("connstr: option %q: %w", key, err)
		}
	}

	return opts, warnings, nil
}

func parseMillis(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return n, nil
}
