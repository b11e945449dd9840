package ocsppdu

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

func mustSelfSignedCert(t *testing.T, key *rsa.PrivateKey) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test responder"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %s", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %s", err)
	}
	return cert
}

func buildResponse(t *testing.T, status int, thisUpdate, nextUpdate time.Time, nonce []byte) []byte {
	t.Helper()
	key := mustRSAKey(t)
	cert := mustSelfSignedCert(t, key)

	if nonce != nil {
		return buildResponseWithResponseExtensions(t, key, cert, status, thisUpdate, nextUpdate, nonce)
	}

	tmpl := ocsp.Response{
		Status:       status,
		SerialNumber: big.NewInt(1),
		ThisUpdate:   thisUpdate,
		NextUpdate:   nextUpdate,
	}
	der, err := ocsp.CreateResponse(cert, cert, tmpl, key)
	if err != nil {
		t.Fatalf("creating OCSP response: %s", err)
	}
	return der
}

// The RFC 6960/8954 nonce lives in tbsResponseData.responseExtensions, a
// position golang.org/x/crypto/ocsp.CreateResponse has no template field
// for: its ExtraExtensions lands in the SingleResponse's singleExtensions
// instead. Reaching the real position means hand-marshaling the
// BasicOCSPResponse, mirroring the struct shapes
// _examples/other_examples/770412eb_smallstep-ocsp__ocsp.go.go uses
// internally for the same ASN.1 grammar.
type rawCertID struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

type rawSingleResponse struct {
	CertID     rawCertID
	Good       asn1.Flag `asn1:"tag:0,optional"`
	Revoked    asn1.Flag `asn1:"tag:1,optional"`
	ThisUpdate time.Time `asn1:"generalized"`
	NextUpdate time.Time `asn1:"generalized,explicit,tag:0,optional"`
}

type rawResponseData struct {
	ResponderID        asn1.RawValue
	ProducedAt         time.Time        `asn1:"generalized"`
	Responses          []rawSingleResponse
	ResponseExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

type rawBasicOCSPResponse struct {
	TBSResponseData    rawResponseData
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
}

type rawResponseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

type rawOCSPResponseEnvelope struct {
	Status   asn1.Enumerated
	Response rawResponseBytes `asn1:"explicit,tag:0"`
}

var (
	oidPKIXOCSPBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}
	oidSHA1WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	oidSHA1          = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
)

func buildResponseWithResponseExtensions(t *testing.T, key *rsa.PrivateKey, cert *x509.Certificate, status int, thisUpdate, nextUpdate time.Time, nonce []byte) []byte {
	t.Helper()

	single := rawSingleResponse{
		CertID: rawCertID{
			HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: oidSHA1, Parameters: asn1.RawValue{Tag: 5}},
			IssuerNameHash: make([]byte, 20),
			IssuerKeyHash:  make([]byte, 20),
			SerialNumber:   big.NewInt(1),
		},
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	}
	switch status {
	case ocsp.Good:
		single.Good = true
	case ocsp.Revoked:
		single.Revoked = true
	}

	tbs := rawResponseData{
		ResponderID: asn1.RawValue{Class: 2, Tag: 1, IsCompound: true, Bytes: cert.RawSubject},
		ProducedAt:  time.Now().Truncate(time.Minute).UTC(),
		Responses:   []rawSingleResponse{single},
		ResponseExtensions: []pkix.Extension{
			{Id: asn1.ObjectIdentifier(nonceOID), Value: nonce},
		},
	}

	tbsDER, err := asn1.Marshal(tbs)
	if err != nil {
		t.Fatalf("marshaling tbsResponseData: %s", err)
	}

	h := crypto.SHA1.New()
	h.Write(tbsDER)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, h.Sum(nil))
	if err != nil {
		t.Fatalf("signing tbsResponseData: %s", err)
	}

	basicDER, err := asn1.Marshal(rawBasicOCSPResponse{
		TBSResponseData:    tbs,
		SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oidSHA1WithRSA, Parameters: asn1.RawValue{Tag: 5}},
		Signature:          asn1.BitString{Bytes: sig, BitLength: 8 * len(sig)},
	})
	if err != nil {
		t.Fatalf("marshaling basicOCSPResponse: %s", err)
	}

	der, err := asn1.Marshal(rawOCSPResponseEnvelope{
		Status: asn1.Enumerated(0),
		Response: rawResponseBytes{
			ResponseType: oidPKIXOCSPBasic,
			Response:     basicDER,
		},
	})
	if err != nil {
		t.Fatalf("marshaling OCSPResponse: %s", err)
	}
	return der
}

func TestDecodeResponse_Good(t *testing.T) {
	thisUpdate := time.Unix(1000, 0).UTC()
	nextUpdate := time.Unix(10000, 0).UTC()
	der := buildResponse(t, ocsp.Good, thisUpdate, nextUpdate, nil)

	decoded, err := DecodeResponse(der)
	if err != nil {
		t.Fatalf("DecodeResponse: %s", err)
	}
	if decoded.CertStatus != "good" {
		t.Errorf("CertStatus = %q, want good", decoded.CertStatus)
	}
	if decoded.ThisUpdate != 1000 {
		t.Errorf("ThisUpdate = %d, want 1000", decoded.ThisUpdate)
	}
	if decoded.NextUpdate != 10000 {
		t.Errorf("NextUpdate = %d, want 10000", decoded.NextUpdate)
	}
	if decoded.NonceCount != 0 {
		t.Errorf("NonceCount = %d, want 0", decoded.NonceCount)
	}
}

func TestDecodeResponse_Revoked(t *testing.T) {
	now := time.Now()
	der := buildResponse(t, ocsp.Revoked, now.Add(-time.Hour), now.Add(time.Hour), nil)
	decoded, err := DecodeResponse(der)
	if err != nil {
		t.Fatalf("DecodeResponse: %s", err)
	}
	if decoded.CertStatus != "revoked" {
		t.Errorf("CertStatus = %q, want revoked", decoded.CertStatus)
	}
}

func TestDecodeResponse_NonceMakesUncacheable(t *testing.T) {
	now := time.Now()
	der := buildResponse(t, ocsp.Good, now.Add(-time.Hour), now.Add(time.Hour), []byte("abc123"))
	decoded, err := DecodeResponse(der)
	if err != nil {
		t.Fatalf("DecodeResponse: %s", err)
	}
	if decoded.NonceCount != 1 {
		t.Errorf("NonceCount = %d, want 1 (response must not be cached)", decoded.NonceCount)
	}
}

func TestDecodeResponse_SingleExtensionNonceIsNotCounted(t *testing.T) {
	// A nonce placed in the SingleResponse's singleExtensions (the position
	// golang.org/x/crypto/ocsp.CreateResponse's ExtraExtensions actually
	// writes to) is the wrong ASN.1 location per RFC 8954 and must not be
	// mistaken for the real thing.
	now := time.Now()
	key := mustRSAKey(t)
	cert := mustSelfSignedCert(t, key)
	tmpl := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: big.NewInt(1),
		ThisUpdate:   now.Add(-time.Hour),
		NextUpdate:   now.Add(time.Hour),
		ExtraExtensions: []pkix.Extension{
			{Id: asn1.ObjectIdentifier(nonceOID), Value: []byte("abc123")},
		},
	}
	der, err := ocsp.CreateResponse(cert, cert, tmpl, key)
	if err != nil {
		t.Fatalf("creating OCSP response: %s", err)
	}

	decoded, err := DecodeResponse(der)
	if err != nil {
		t.Fatalf("DecodeResponse: %s", err)
	}
	if decoded.NonceCount != 0 {
		t.Errorf("NonceCount = %d, want 0 for a singleExtensions-only nonce", decoded.NonceCount)
	}
}

func TestDecodeResponse_Garbage(t *testing.T) {
	if _, err := DecodeResponse([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("expected an error decoding garbage input")
	}
}
