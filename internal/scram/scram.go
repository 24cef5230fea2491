// Package scram implements the client side of SCRAM-SHA-1/256/512
// authentication (spec.md §4.3's handshake Auth step), grounded on
// original_source/ext/couchbase/cbsasl/scram-sha/scram-sha.cc: the same
// four-message exchange (client-first / server-first / client-final /
// server-final) and the same SaltedPassword/ClientKey/ServerKey
// derivation, re-expressed with golang.org/x/crypto/pbkdf2 and the
// stdlib crypto/hmac + crypto/sha1/sha256/sha512 instead of a bespoke
// cbcrypto backend.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism identifies which SHA variant backs the exchange.
type Mechanism string

const (
	SHA1   Mechanism = "SCRAM-SHA1"
	SHA256 Mechanism = "SCRAM-SHA256"
	SHA512 Mechanism = "SCRAM-SHA512"
)

func (m Mechanism) hashFunc() (func() hash.Hash, error) {
	switch m {
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("scram: unsupported mechanism %q", m)
	}
}

// BestMechanism picks the strongest mechanism the server advertised,
// matching the original client's preference for SHA-512 over SHA-256
// over SHA-1 when the server lists more than one.
func BestMechanism(serverMechs []string) (Mechanism, bool) {
	offered := make(map[string]bool, len(serverMechs))
	for _, m := range serverMechs {
		offered[strings.ToUpper(m)] = true
	}
	for _, m := range []Mechanism{SHA512, SHA256, SHA1} {
		if offered[string(m)] {
			return m, true
		}
	}
	return "", false
}

// stage tracks which leg of the exchange Client.Step expects next.
type stage int

const (
	stageAwaitServerFirst stage = iota
	stageAwaitServerFinal
	stageDone
)

// Client drives one SCRAM authentication attempt. It is not safe for
// concurrent use and is discarded after Step returns done or an error.
type Client struct {
	mechanism Mechanism
	hashFunc  func() hash.Hash
	username  string
	password  string
	nonce     string

	clientFirstBare          string
	serverFirstMessage       string
	clientFinalWithoutProof  string

	salt           []byte
	iterations     int
	saltedPassword []byte

	stage stage
}

// NewClient builds a Client for the given mechanism, username and
// password. The client nonce is generated internally from crypto/rand.
func NewClient(mechanism Mechanism, username, password string) (*Client, error) {
	hashFunc, err := mechanism.hashFunc()
	if err != nil {
		return nil, err
	}

	nonceBytes := make([]byte, 8)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("scram: generating client nonce: %w", err)
	}

	return &Client{
		mechanism: mechanism,
		hashFunc:  hashFunc,
		username:  username,
		password:  password,
		nonce:     hex.EncodeToString(nonceBytes),
	}, nil
}

// Start returns the client-first message: "n,,n=<user>,r=<nonce>".
func (c *Client) Start() string {
	bare := fmt.Sprintf("n=%s,r=%s", encodeUsername(c.username), c.nonce)
	c.clientFirstBare = bare
	return "n,," + bare
}

// Step advances the exchange given the server's latest message, and
// returns the next message to send, or "" once Done() is true. A
// non-nil error means authentication must abort. Errors are plain
// (untyped); only the message tells a protocol/decoding fault apart
// from a server-reported failure or a server signature mismatch.
func (c *Client) Step(serverMessage string) (next string, err error) {
	switch c.stage {
	case stageAwaitServerFirst:
		return c.stepServerFirst(serverMessage)
	case stageAwaitServerFinal:
		return c.stepServerFinal(serverMessage)
	default:
		return "", fmt.Errorf("scram: Step called after exchange completed")
	}
}

// Done reports whether the exchange finished (successfully; a failed
// exchange returns from Step with a non-nil error instead).
func (c *Client) Done() bool { return c.stage == stageDone }

func (c *Client) stepServerFirst(serverMessage string) (string, error) {
	c.serverFirstMessage = serverMessage

	attrs, err := decodeAttributes(serverMessage)
	if err != nil {
		return "", fmt.Errorf("scram: decoding server-first message: %w", err)
	}

	nonce, ok := attrs['r']
	if !ok {
		return "", fmt.Errorf("scram: server-first message missing nonce")
	}
	if !strings.HasPrefix(nonce, c.nonce) {
		return "", fmt.Errorf("scram: server nonce does not extend client nonce")
	}

	saltB64, ok := attrs['s']
	if !ok {
		return "", fmt.Errorf("scram: server-first message missing salt")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("scram: decoding salt: %w", err)
	}

	iterStr, ok := attrs['i']
	if !ok {
		return "", fmt.Errorf("scram: server-first message missing iteration count")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return "", fmt.Errorf("scram: invalid iteration count %q", iterStr)
	}

	c.salt = salt
	c.iterations = iterations
	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, c.hashFunc().Size(), c.hashFunc)

	withoutProof := fmt.Sprintf("c=%s,r=%s", base64.StdEncoding.EncodeToString([]byte("n,,")), nonce)
	c.clientFinalWithoutProof = withoutProof

	proof := c.clientProof()
	final := fmt.Sprintf("%s,p=%s", withoutProof, base64.StdEncoding.EncodeToString(proof))

	c.stage = stageAwaitServerFinal
	return final, nil
}

func (c *Client) stepServerFinal(serverMessage string) (string, error) {
	attrs, err := decodeAttributes(serverMessage)
	if err != nil {
		return "", fmt.Errorf("scram: decoding server-final message: %w", err)
	}

	if errMsg, ok := attrs['e']; ok {
		return "", fmt.Errorf("scram: server reported authentication failure: %s", errMsg)
	}

	sigB64, ok := attrs['v']
	if !ok {
		return "", fmt.Errorf("scram: server-final message missing signature")
	}

	expected := base64.StdEncoding.EncodeToString(c.serverSignature())
	if !hmac.Equal([]byte(expected), []byte(sigB64)) {
		return "", fmt.Errorf("scram: server signature mismatch")
	}

	c.stage = stageDone
	return "", nil
}

// authMessage reconstructs client-first-bare,server-first,client-final-without-proof.
func (c *Client) authMessage() string {
	return c.clientFirstBare + "," + c.serverFirstMessage + "," + c.clientFinalWithoutProof
}

func (c *Client) hmacOf(key []byte, data string) []byte {
	mac := hmac.New(c.hashFunc, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func (c *Client) clientProof() []byte {
	clientKey := c.hmacOf(c.saltedPassword, "Client Key")
	h := c.hashFunc()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	clientSignature := c.hmacOf(storedKey, c.authMessage())

	proof := make([]byte, len(clientKey))
	for i := range proof {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}
	return proof
}

func (c *Client) serverSignature() []byte {
	serverKey := c.hmacOf(c.saltedPassword, "Server Key")
	return c.hmacOf(serverKey, c.authMessage())
}

// encodeUsername applies the SCRAM "saslprep"-adjacent escaping of ','
// and '=' required by RFC 5802 §5.1 (simplified: the original escapes
// only these two characters rather than running full SASLprep).
func encodeUsername(username string) string {
	username = strings.ReplaceAll(username, "=", "=3D")
	username = strings.ReplaceAll(username, ",", "=2C")
	return username
}

func decodeAttributes(message string) (map[byte]string, error) {
	attrs := make(map[byte]string)
	for _, part := range strings.Split(message, ",") {
		eq := strings.IndexByte(part, '=')
		if eq != 1 {
			return nil, fmt.Errorf("malformed attribute %q", part)
		}
		key := part[0]
		if _, dup := attrs[key]; dup {
			return nil, fmt.Errorf("duplicate attribute %q", string(key))
		}
		attrs[key] = part[eq+1:]
	}
	return attrs, nil
}
