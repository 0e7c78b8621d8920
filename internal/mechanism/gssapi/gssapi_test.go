package gssapi

import (
	"context"
	"testing"

	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ircservices/saslbroker/internal/mechanism"
	krb "github.com/ircservices/saslbroker/internal/mechanism/gssapi/krb"
)

// stubVerifier implements Verifier for testing without a real KDC.
type stubVerifier struct {
	vc  *VerifiedContext
	err error
}

func (v *stubVerifier) VerifyToken(_ []byte) (*VerifiedContext, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.vc, nil
}

func testSessionKey() types.EncryptionKey {
	return types.EncryptionKey{KeyType: 18, KeyValue: []byte("0123456789abcdef")}
}

// clientLayerResponse builds the client-side reply to a security layer
// negotiation challenge: the chosen layer plus an optional authzid,
// MIC-protected as the Mechanism's parseLayerNegotiation expects.
func clientLayerResponse(t *testing.T, sessionKey types.EncryptionKey, authzid string) []byte {
	t.Helper()
	payload := append([]byte{layerNone, 0, 0, 0}, []byte(authzid)...)

	mic := gssapi.MICToken{Payload: payload}
	require.NoError(t, mic.SetChecksum(sessionKey, keyUsageInitiatorSign))
	micBytes, err := mic.Marshal()
	require.NoError(t, err)

	return append(payload, micBytes...)
}

func TestStartWithEmptyInitialRequestsMore(t *testing.T) {
	m := NewWithVerifier(&stubVerifier{}, krb.IdentityMapper{})

	state, challenge, status, identity := m.Start(context.Background(), nil)

	assert.Nil(t, state)
	assert.Nil(t, challenge)
	assert.Equal(t, mechanism.More, status)
	assert.Nil(t, identity)
}

func TestStartWithoutMutualAuthGoesStraightToLayerNegotiation(t *testing.T) {
	verifier := &stubVerifier{vc: &VerifiedContext{
		Principal:  "alice",
		Realm:      "EXAMPLE.COM",
		SessionKey: testSessionKey(),
	}}
	m := NewWithVerifier(verifier, krb.IdentityMapper{})

	state, challenge, status, identity := m.Start(context.Background(), []byte("fake-ap-req"))

	require.Equal(t, mechanism.More, status)
	assert.Nil(t, identity)
	assert.NotEmpty(t, challenge)
	assert.NotNil(t, state)
}

func TestVerificationFailureErrors(t *testing.T) {
	m := NewWithVerifier(&stubVerifier{err: assert.AnError}, krb.IdentityMapper{})

	_, _, status, _ := m.Start(context.Background(), []byte("bad-ap-req"))

	assert.Equal(t, mechanism.Error, status)
}

func TestMutualAuthRequiresAnExtraRoundBeforeLayerNegotiation(t *testing.T) {
	verifier := &stubVerifier{vc: &VerifiedContext{
		Principal:      "alice",
		Realm:          "EXAMPLE.COM",
		SessionKey:     testSessionKey(),
		APRepToken:     []byte("ap-rep"),
		MutualRequired: true,
	}}
	m := NewWithVerifier(verifier, krb.IdentityMapper{})

	state, challenge, status, _ := m.Start(context.Background(), []byte("ap-req-mutual"))
	require.Equal(t, mechanism.More, status)
	assert.Equal(t, []byte("ap-rep"), challenge)

	nextState, layerChallenge, nextStatus, _ := m.Step(context.Background(), state, nil)
	assert.Equal(t, mechanism.More, nextStatus)
	assert.NotEmpty(t, layerChallenge)
	assert.NotNil(t, nextState)
}

func TestUnknownPrincipalFailsLogin(t *testing.T) {
	verifier := &stubVerifier{vc: &VerifiedContext{
		Principal:  "ghost",
		Realm:      "EXAMPLE.COM",
		SessionKey: testSessionKey(),
	}}
	mapper := krb.NewStaticMapper(map[string]string{"alice@EXAMPLE.COM": "alice"})
	m := NewWithVerifier(verifier, mapper)

	state, _, status, _ := m.Start(context.Background(), []byte("ap-req"))
	require.Equal(t, mechanism.More, status)

	response := clientLayerResponse(t, testSessionKey(), "")
	_, _, finalStatus, identity := m.Step(context.Background(), state, response)
	assert.Equal(t, mechanism.Fail, finalStatus)
	assert.Nil(t, identity)
}

func TestKnownPrincipalCompletesLoginWithAuthzid(t *testing.T) {
	verifier := &stubVerifier{vc: &VerifiedContext{
		Principal:  "alice",
		Realm:      "EXAMPLE.COM",
		SessionKey: testSessionKey(),
	}}
	m := NewWithVerifier(verifier, krb.IdentityMapper{})

	state, _, status, _ := m.Start(context.Background(), []byte("ap-req"))
	require.Equal(t, mechanism.More, status)

	response := clientLayerResponse(t, testSessionKey(), "alice-bot")
	_, _, finalStatus, identity := m.Step(context.Background(), state, response)
	require.Equal(t, mechanism.Done, finalStatus)
	require.NotNil(t, identity)
	assert.Equal(t, "alice", identity.AuthcID)
	assert.Equal(t, "alice-bot", identity.AuthzID)
}

func TestClientRejectingAllLayersFails(t *testing.T) {
	_, err := parseLayerNegotiation(testSessionKey(), []byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrLayerRejected)
}

func TestShortResponseIsMalformed(t *testing.T) {
	_, err := parseLayerNegotiation(testSessionKey(), []byte{1})
	assert.ErrorIs(t, err, ErrMalformed)
}
