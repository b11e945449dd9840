package ocsppdu

import (
	"crypto/x509/pkix"
	"encoding/asn1"

	"golang.org/x/crypto/ocsp"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/ocsperr"
)

// nonceOID is the OCSP nonce extension, RFC 8954 section 2.
// 1.3.6.1.5.5.7.48.1.2
var nonceOID = []int{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

// certStatusName maps golang.org/x/crypto/ocsp's integer status constants
// onto the CHOICE tag names used by the cache's status field.
func certStatusName(status int) string {
	switch status {
	case ocsp.Good:
		return "good"
	case ocsp.Revoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// responseBytes is RFC 6960's ResponseBytes: the OCTET STRING holds a
// DER-encoded basicOCSPResponse.
type responseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

// ocspResponseEnvelope is RFC 6960's OCSPResponse, just far enough to reach
// the signed basicOCSPResponse bytes; responseStatus itself is left to
// golang.org/x/crypto/ocsp.ParseResponse.
type ocspResponseEnvelope struct {
	ResponseStatus asn1.Enumerated
	ResponseBytes  responseBytes `asn1:"optional,explicit,tag:0"`
}

// basicOCSPResponse is RFC 6960's BasicOCSPResponse, reduced to the signed
// tbsResponseData; signatureAlgorithm, signature and certs don't affect a
// caching decision and are left unparsed.
type basicOCSPResponse struct {
	TBSResponseData responseData
}

// responseData is RFC 6960's ResponseData. responderID, producedAt and
// responses are captured raw purely so the decoder skips over them
// correctly; only responseExtensions feeds a caching decision.
type responseData struct {
	Version            int              `asn1:"optional,explicit,default:0,tag:0"`
	ResponderID        asn1.RawValue
	ProducedAt         asn1.RawValue
	Responses          asn1.RawValue
	ResponseExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// countResponseExtensionNonces hand-parses der for nonce extensions in
// tbsResponseData.responseExtensions. golang.org/x/crypto/ocsp's Response
// only exposes the first SingleResponse's singleExtensions (its Extensions
// and ExtraExtensions fields); RFC 6960/8954 place the nonce at the
// top-level responseExtensions instead, a field the library never parses,
// so it has to be reached by hand.
func countResponseExtensionNonces(der []byte) (int, error) {
	var envelope ocspResponseEnvelope
	if _, err := asn1.Unmarshal(der, &envelope); err != nil {
		return 0, err
	}
	if len(envelope.ResponseBytes.Response) == 0 {
		return 0, nil
	}

	var basic basicOCSPResponse
	if _, err := asn1.Unmarshal(envelope.ResponseBytes.Response, &basic); err != nil {
		return 0, err
	}

	count := 0
	for _, ext := range basic.TBSResponseData.ResponseExtensions {
		if ext.Id.Equal(nonceOID) {
			count++
		}
	}
	return count, nil
}

// DecodedResponse is the result of DecodeResponse.
type DecodedResponse struct {
	ThisUpdate int64
	NextUpdate int64
	CertStatus string
	NonceCount int
}

// DecodeResponse parses a DER-encoded OCSPResponse, pulling the first
// SingleResponse's thisUpdate/nextUpdate/certStatus from
// golang.org/x/crypto/ocsp and counting nonce extensions in
// tbsResponseData.responseExtensions itself. It does not verify the
// response signature: issuer is always passed as nil to
// golang.org/x/crypto/ocsp.ParseResponse, which skips signature checking
// in that case. A non-successful responseStatus surfaces as a
// ResponderStatusNonSuccess error, since the library itself refuses to
// decode a BasicOCSPResponse body that isn't there.
func DecodeResponse(der []byte) (*DecodedResponse, error) {
	resp, err := ocsp.ParseResponse(der, nil)
	if err != nil {
		if respErr, ok := err.(ocsp.ResponseError); ok {
			return nil, ocsperr.ResponderStatusNonSuccess("upstream responseStatus was not successful", respErr)
		}
		return nil, ocsperr.Decode("failed to parse OCSPResponse", err)
	}

	nonceCount, err := countResponseExtensionNonces(der)
	if err != nil {
		return nil, ocsperr.Decode("failed to parse tbsResponseData.responseExtensions", err)
	}

	return &DecodedResponse{
		ThisUpdate: resp.ThisUpdate.Unix(),
		NextUpdate: resp.NextUpdate.Unix(),
		CertStatus: certStatusName(resp.Status),
		NonceCount: nonceCount,
	}, nil
}
