package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// fakeServer implements just enough of the SCRAM server side (in terms
// of the same primitives the client uses) to drive Client through a
// full exchange without a real cluster.
type fakeServer struct {
	mechanism  Mechanism
	hashFunc   func() hash.Hash
	username   string
	password   string
	salt       []byte
	iterations int
	nonce      string
}

func newFakeServer(t *testing.T, mechanism Mechanism, username, password string) *fakeServer {
	t.Helper()
	hf, err := mechanism.hashFunc()
	require.NoError(t, err)
	salt := make([]byte, 16)
	_, err = rand.Read(salt)
	require.NoError(t, err)
	return &fakeServer{mechanism: mechanism, hashFunc: hf, username: username, password: password, salt: salt, iterations: 4096}
}

func (s *fakeServer) firstMessage(clientFirstBare string) string {
	var clientNonce string
	for _, part := range strings.Split(clientFirstBare, ",") {
		if strings.HasPrefix(part, "r=") {
			clientNonce = part[2:]
		}
	}
	serverNonceSuffix := make([]byte, 8)
	_, _ = rand.Read(serverNonceSuffix)
	s.nonce = clientNonce + base64.RawStdEncoding.EncodeToString(serverNonceSuffix)
	return fmt.Sprintf("r=%s,s=%s,i=%d", s.nonce, base64.StdEncoding.EncodeToString(s.salt), s.iterations)
}

func (s *fakeServer) saltedPassword() []byte {
	hf, _ := s.mechanism.hashFunc()
	return pbkdf2.Key([]byte(s.password), s.salt, s.iterations, hf().Size(), hf)
}

func (s *fakeServer) hmacOf(key []byte, data string) []byte {
	mac := hmac.New(s.hashFunc, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func (s *fakeServer) finalMessage(authMessage string, wrongSignature bool) string {
	serverKey := s.hmacOf(s.saltedPassword(), "Server Key")
	sig := s.hmacOf(serverKey, authMessage)
	if wrongSignature {
		sig[0] ^= 0xff
	}
	return fmt.Sprintf("v=%s", base64.StdEncoding.EncodeToString(sig))
}

func runExchange(t *testing.T, mechanism Mechanism, username, password string, corruptSignature bool) error {
	t.Helper()
	client, err := NewClient(mechanism, username, password)
	require.NoError(t, err)

	clientFirst := client.Start()
	require.True(t, strings.HasPrefix(clientFirst, "n,,"))
	clientFirstBare := strings.TrimPrefix(clientFirst, "n,,")

	server := newFakeServer(t, mechanism, username, password)
	serverFirst := server.firstMessage(clientFirstBare)

	clientFinal, err := client.Step(serverFirst)
	require.NoError(t, err)
	require.False(t, client.Done())

	withoutProof := strings.Split(clientFinal, ",p=")[0]
	authMessage := clientFirstBare + "," + serverFirst + "," + withoutProof
	serverFinal := server.finalMessage(authMessage, corruptSignature)

	_, err = client.Step(serverFinal)
	return err
}

func TestClient_FullExchangeSucceeds(t *testing.T) {
	for _, mech := range []Mechanism{SHA1, SHA256, SHA512} {
		err := runExchange(t, mech, "user1", "pencil", false)
		assert.NoError(t, err, "mechanism %s", mech)
	}
}

func TestClient_RejectsForgedServerSignature(t *testing.T) {
	err := runExchange(t, SHA256, "user1", "pencil", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestClient_StepAfterDoneFails(t *testing.T) {
	client, err := NewClient(SHA256, "user1", "pencil")
	require.NoError(t, err)
	client.stage = stageDone
	_, err = client.Step("anything")
	assert.Error(t, err)
}

func TestClient_RejectsServerFirstMissingFields(t *testing.T) {
	client, err := NewClient(SHA256, "user1", "pencil")
	require.NoError(t, err)
	client.Start()

	_, err = client.Step("r=" + client.nonce + "srv,s=c2FsdA==")
	assert.Error(t, err)
}

func TestClient_RejectsNonExtendingServerNonce(t *testing.T) {
	client, err := NewClient(SHA256, "user1", "pencil")
	require.NoError(t, err)
	client.Start()

	_, err = client.Step("r=totally-different,s=c2FsdA==,i=4096")
	assert.Error(t, err)
}

func TestClient_ServerReportedFailure(t *testing.T) {
	client, err := NewClient(SHA256, "user1", "pencil")
	require.NoError(t, err)
	clientFirstBare := strings.TrimPrefix(client.Start(), "n,,")
	server := newFakeServer(t, SHA256, "user1", "pencil")
	serverFirst := server.firstMessage(clientFirstBare)

	_, err = client.Step(serverFirst)
	require.NoError(t, err)

	_, err = client.Step("e=invalid-username")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-username")
}

func TestBestMechanism_PrefersStrongest(t *testing.T) {
	m, ok := BestMechanism([]string{"SCRAM-SHA1", "SCRAM-SHA256", "PLAIN"})
	require.True(t, ok)
	assert.Equal(t, SHA256, m)

	m, ok = BestMechanism([]string{"SCRAM-SHA1"})
	require.True(t, ok)
	assert.Equal(t, SHA1, m)

	_, ok = BestMechanism([]string{"PLAIN"})
	assert.False(t, ok)
}

func TestEncodeUsername_EscapesCommaAndEquals(t *testing.T) {
	assert.Equal(t, "foo=2Cbar=3Dbaz", encodeUsername("foo,bar=baz"))
}
