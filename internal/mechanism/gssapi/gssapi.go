// Package gssapi implements the GSSAPI SASL mechanism (RFC 4752) for
// services using Kerberos V5 as the underlying GSS-API mechanism.
//
// The exchange has three rounds: the client's AP-REQ is verified against
// the service keytab, an optional AP-REP round completes mutual
// authentication, and a final round negotiates the SASL security layer.
// The broker always advertises "no security layer" and never the
// integrity or confidentiality layers, so that round amounts to telling
// the client it got what it asked for and reading back its authzid.
package gssapi

import (
	"context"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/ircservices/saslbroker/internal/mechanism"
	krb "github.com/ircservices/saslbroker/internal/mechanism/gssapi/krb"
)

// Name is the SASL mechanism name advertised in the mechlist.
const Name = "GSSAPI"

// krb5OID is the Kerberos V5 GSS-API mechanism OID (1.2.840.113554.1.2.2).
var krb5OID = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}

// layerNone is the sole bit the broker ever advertises in the security
// layer negotiation message (RFC 4752 Section 3.1): "no security layer".
const layerNone byte = 1

// Key usages for GSS-API tokens, per RFC 4120/4121.
const (
	keyUsageAPRepEncPart  uint32 = 12
	keyUsageAcceptorSign  uint32 = 23
	keyUsageInitiatorSign uint32 = 25
)

var (
	// ErrMalformed indicates a layer-negotiation response that doesn't
	// decode to the expected 4-byte bitmask+maxbuf payload.
	ErrMalformed = errors.New("gssapi: malformed security layer response")
	// ErrLayerRejected indicates the client asked for a security layer
	// the broker doesn't support.
	ErrLayerRejected = errors.New("gssapi: client requested an unsupported security layer")
)

// Verifier abstracts AP-REQ verification so the mechanism can be tested
// without a KDC and keytab on disk.
type Verifier interface {
	VerifyToken(gssToken []byte) (*VerifiedContext, error)
}

// VerifiedContext is the result of a successful AP-REQ verification.
type VerifiedContext struct {
	Principal      string
	Realm          string
	SessionKey     types.EncryptionKey
	APRepToken     []byte
	MutualRequired bool
}

// Krb5Verifier implements Verifier using gokrb5 against a keytab-backed
// Provider.
type Krb5Verifier struct {
	provider *krb.Provider
}

// NewKrb5Verifier builds a production Verifier backed by provider.
func NewKrb5Verifier(provider *krb.Provider) *Krb5Verifier {
	return &Krb5Verifier{provider: provider}
}

func (v *Krb5Verifier) VerifyToken(gssToken []byte) (*VerifiedContext, error) {
	apReqBytes, err := extractAPReq(gssToken)
	if err != nil {
		return nil, fmt.Errorf("extract AP-REQ: %w", err)
	}

	var apReq messages.APReq
	if err := apReq.Unmarshal(apReqBytes); err != nil {
		return nil, fmt.Errorf("unmarshal AP-REQ: %w", err)
	}

	settings := service.NewSettings(
		v.provider.Keytab(),
		service.MaxClockSkew(v.provider.MaxClockSkew()),
		service.DecodePAC(false),
		service.KeytabPrincipal(v.provider.ServicePrincipal()),
	)

	ok, _, err := service.VerifyAPREQ(&apReq, settings)
	if err != nil {
		return nil, fmt.Errorf("verify AP-REQ: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("AP-REQ verification failed")
	}

	mutualRequired := false
	if len(apReq.APOptions.Bytes) > 0 {
		mutualRequired = (apReq.APOptions.Bytes[0] & 0x20) != 0
	}

	sessionKey := apReq.Ticket.DecryptedEncPart.Key
	if err := apReq.DecryptAuthenticator(sessionKey); err != nil {
		return nil, fmt.Errorf("decrypt authenticator: %w", err)
	}

	var apRepToken []byte
	if mutualRequired {
		apRepToken, err = buildAPRep(apReq, sessionKey)
		if err != nil {
			return nil, fmt.Errorf("build AP-REP: %w", err)
		}
	}

	return &VerifiedContext{
		Principal:      apReq.Ticket.DecryptedEncPart.CName.PrincipalNameString(),
		Realm:          apReq.Ticket.DecryptedEncPart.CRealm,
		SessionKey:     sessionKey,
		APRepToken:     apRepToken,
		MutualRequired: mutualRequired,
	}, nil
}

// buildAPRep constructs a mutual-authentication AP-REP for apReq, echoing
// the authenticator's timestamp per RFC 4120 Section 5.5.2, and wraps it
// in a GSS-API mech token (RFC 1964 token ID 0x0200).
func buildAPRep(apReq messages.APReq, sessionKey types.EncryptionKey) ([]byte, error) {
	encPart := messages.EncAPRepPart{
		CTime: apReq.Authenticator.CTime,
		Cusec: apReq.Authenticator.Cusec,
	}
	if apReq.Authenticator.SubKey.KeyType != 0 {
		encPart.Subkey = apReq.Authenticator.SubKey
	}

	encPartInner, err := asn1.Marshal(encPart)
	if err != nil {
		return nil, fmt.Errorf("marshal EncAPRepPart: %w", err)
	}
	encPartBytes := asn1tools.AddASNAppTag(encPartInner, 27)

	encryptedData, err := crypto.GetEncryptedData(encPartBytes, sessionKey, keyUsageAPRepEncPart, 0)
	if err != nil {
		return nil, fmt.Errorf("encrypt EncAPRepPart: %w", err)
	}

	apRep := messages.APRep{
		PVNO:    5,
		MsgType: 15, // KRB_AP_REP
		EncPart: encryptedData,
	}
	apRepInner, err := asn1.Marshal(apRep)
	if err != nil {
		return nil, fmt.Errorf("marshal AP-REP: %w", err)
	}
	apRepBytes := asn1tools.AddASNAppTag(apRepInner, 15)

	return wrapGSSToken(apRepBytes, 0x0200)
}

// extractAPReq strips the GSS-API initial context token wrapper (RFC 2743
// Section 3.1) if present, returning the raw AP-REQ bytes. Uses
// encoding/asn1 to parse the outer APPLICATION-tagged TLV and the OID
// inside it, rather than a hand-rolled length decoder.
func extractAPReq(token []byte) ([]byte, error) {
	if len(token) < 2 {
		return nil, fmt.Errorf("token too short: %d bytes", len(token))
	}

	if token[0] != 0x60 {
		// Not GSS-wrapped; assume a raw AP-REQ.
		return token, nil
	}

	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(token, &outer); err != nil {
		return nil, fmt.Errorf("parse outer GSS token: %w", err)
	}

	var oid asn1.ObjectIdentifier
	rest, err := asn1.Unmarshal(outer.Bytes, &oid)
	if err != nil {
		return nil, fmt.Errorf("parse mechanism OID: %w", err)
	}
	if !oid.Equal(krb5OID) {
		return nil, fmt.Errorf("unsupported GSS-API mechanism OID %v", oid)
	}
	if len(rest) < 2 {
		return nil, fmt.Errorf("inner token missing krb5 token ID")
	}

	// RFC 1964 Section 1.1: 2-byte token ID, 0x01 0x00 for AP-REQ.
	return rest[2:], nil
}

// wrapGSSToken wraps innerToken in a GSS-API initial/mech token (RFC 2743
// Section 3.1, RFC 1964 Section 1.1): the krb5 mechanism OID followed by a
// 2-byte token ID, all under an ASN.1 APPLICATION 0 tag.
func wrapGSSToken(innerToken []byte, tokenID uint16) ([]byte, error) {
	oidBytes, err := asn1.Marshal(krb5OID)
	if err != nil {
		return nil, err
	}

	content := make([]byte, 0, len(oidBytes)+2+len(innerToken))
	content = append(content, oidBytes...)
	content = append(content, byte(tokenID>>8), byte(tokenID&0xFF))
	content = append(content, innerToken...)

	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        0,
		IsCompound: true,
		Bytes:      content,
	})
}

// phase tracks where a multi-round GSSAPI exchange is in its lifecycle.
type phase int

const (
	phaseAwaitMutual phase = iota
	phaseNegotiateLayer
)

type state struct {
	phase      phase
	principal  string
	realm      string
	sessionKey types.EncryptionKey
}

// Wipe clears the session key material once the exchange is done.
func (s *state) Wipe() {
	for i := range s.sessionKey.KeyValue {
		s.sessionKey.KeyValue[i] = 0
	}
}

// Mechanism implements mechanism.Mechanism for GSSAPI.
type Mechanism struct {
	verifier Verifier
	mapper   krb.PrincipalMapper
}

// New builds a GSSAPI mechanism backed by provider's keytab and mapper for
// translating verified principals into SASL authcids.
func New(provider *krb.Provider, mapper krb.PrincipalMapper) *Mechanism {
	return &Mechanism{verifier: NewKrb5Verifier(provider), mapper: mapper}
}

// NewWithVerifier builds a GSSAPI mechanism against an arbitrary Verifier,
// for tests that don't want to stand up a KDC and keytab.
func NewWithVerifier(verifier Verifier, mapper krb.PrincipalMapper) *Mechanism {
	return &Mechanism{verifier: verifier, mapper: mapper}
}

func (m *Mechanism) Name() string { return Name }

func (m *Mechanism) Start(_ context.Context, initial []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	if len(initial) == 0 {
		return nil, nil, mechanism.More, nil
	}

	vc, err := m.verifier.VerifyToken(initial)
	if err != nil {
		return nil, nil, mechanism.Error, nil
	}

	st := &state{principal: vc.Principal, realm: vc.Realm, sessionKey: vc.SessionKey}

	if vc.MutualRequired && len(vc.APRepToken) > 0 {
		st.phase = phaseAwaitMutual
		return st, vc.APRepToken, mechanism.More, nil
	}

	challenge, err := buildLayerNegotiation(st.sessionKey)
	if err != nil {
		return nil, nil, mechanism.Error, nil
	}
	st.phase = phaseNegotiateLayer
	return st, challenge, mechanism.More, nil
}

func (m *Mechanism) Step(_ context.Context, s any, response []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	st, ok := s.(*state)
	if !ok {
		return nil, nil, mechanism.Error, nil
	}

	switch st.phase {
	case phaseAwaitMutual:
		challenge, err := buildLayerNegotiation(st.sessionKey)
		if err != nil {
			return nil, nil, mechanism.Error, nil
		}
		st.phase = phaseNegotiateLayer
		return st, challenge, mechanism.More, nil

	case phaseNegotiateLayer:
		authzid, err := parseLayerNegotiation(st.sessionKey, response)
		if err != nil {
			return nil, nil, mechanism.Fail, nil
		}

		authcid, ok, err := m.mapper.MapPrincipal(st.principal, st.realm)
		if err != nil {
			return nil, nil, mechanism.Error, nil
		}
		if !ok {
			return nil, nil, mechanism.Fail, nil
		}

		st.Wipe()
		return nil, nil, mechanism.Done, &mechanism.Identity{AuthcID: authcid, AuthzID: authzid}

	default:
		return nil, nil, mechanism.Error, nil
	}
}

func (m *Mechanism) Finish(s any) {
	if st, ok := s.(*state); ok {
		st.Wipe()
	}
}

// buildLayerNegotiation builds the server's security layer negotiation
// message (RFC 4752 Section 3.1): a 1-octet bitmask of supported layers
// followed by a 3-octet maximum output message size, integrity-protected
// with a GSS-API MIC token computed over that payload. The broker only
// ever advertises layerNone, with a zero max buffer size.
func buildLayerNegotiation(sessionKey types.EncryptionKey) ([]byte, error) {
	payload := []byte{layerNone, 0, 0, 0}

	mic := gssapi.MICToken{
		Flags:   gssapi.MICTokenFlagSentByAcceptor,
		Payload: payload,
	}
	if err := mic.SetChecksum(sessionKey, keyUsageAcceptorSign); err != nil {
		return nil, fmt.Errorf("compute layer negotiation MIC: %w", err)
	}

	micBytes, err := mic.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal layer negotiation MIC: %w", err)
	}

	return append(payload, micBytes...), nil
}

// parseLayerNegotiation verifies and parses the client's reply to the
// security layer negotiation: the same 4-octet payload (selected layer +
// max buffer size, which the broker ignores since it only offers
// layerNone) optionally followed by a UTF-8 authzid, MIC-protected the
// same way.
func parseLayerNegotiation(sessionKey types.EncryptionKey, response []byte) (authzid string, err error) {
	if len(response) < 4 {
		return "", ErrMalformed
	}
	payload := response[:4]
	if payload[0]&layerNone == 0 {
		return "", ErrLayerRejected
	}

	rest := response[4:]
	micLen := micTokenLength()
	if len(rest) < micLen {
		return "", ErrMalformed
	}

	var mic gssapi.MICToken
	if err := mic.Unmarshal(rest[len(rest)-micLen:], false); err != nil {
		return "", fmt.Errorf("unmarshal response MIC: %w", err)
	}
	mic.Payload = response[:len(response)-micLen]
	if ok, err := mic.Verify(sessionKey, keyUsageInitiatorSign); err != nil || !ok {
		return "", fmt.Errorf("verify response MIC: %w", err)
	}

	return string(rest[:len(rest)-micLen]), nil
}

// micTokenLength is the wire length of a GSS-API MIC token trailer for the
// AES-CTS-HMAC-SHA1-96 etypes the broker's keytabs are expected to carry:
// a fixed 16-byte header plus a 12-byte truncated HMAC.
func micTokenLength() int {
	return 28
}
