// Package ocsppdu decodes just enough of the OCSP request and response
// ASN.1 structures (RFC 6960) to make caching decisions. It does not
// verify signatures and does not reconstruct every optional field.
package ocsppdu

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/ocsperr"
)

// algorithmIdentifier mirrors pkix.AlgorithmIdentifier; asn1 needs a
// concrete struct (not an interface) to unmarshal into.
type algorithmIdentifier = pkix.AlgorithmIdentifier

// certID is RFC 6960's CertID.
type certID struct {
	HashAlgorithm  algorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// request is RFC 6960's Request.
type request struct {
	ReqCert                 certID
	SingleRequestExtensions asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// tbsRequest is RFC 6960's TBSRequest. requestorName and requestExtensions
// are captured as raw, untyped values purely so the decoder can skip over
// them correctly when present; neither affects caching decisions.
type tbsRequest struct {
	Version           int             `asn1:"optional,explicit,default:0,tag:0"`
	RequestorName     asn1.RawValue   `asn1:"optional,explicit,tag:1"`
	RequestList       []request
	RequestExtensions asn1.RawValue   `asn1:"optional,explicit,tag:2"`
}

// ocspRequest is RFC 6960's OCSPRequest.
type ocspRequest struct {
	TBSRequest tbsRequest
	// OptionalSignature omitted (tag 0): the proxy doesn't verify requests.
}

// ReqCert is the first entry's CertID, reduced to the fields the cache key
// and refresh path need.
type ReqCert struct {
	IssuerKeyHash []byte
	SerialNumber  *big.Int
}

// DecodedRequest is the result of DecodeRequest.
type DecodedRequest struct {
	RequestCount int
	FirstReqCert ReqCert
}

// DecodeRequest parses a DER-encoded OCSPRequest and extracts the request
// list length and the first CertID's issuer key hash and serial number.
//
// tbsRequest.version and requestorName are decoded only so the parser can
// step over them; neither is returned, since neither affects cache key
// derivation or upstream forwarding.
func DecodeRequest(der []byte) (*DecodedRequest, error) {
	var req ocspRequest
	rest, err := asn1.Unmarshal(der, &req)
	if err != nil {
		return nil, ocsperr.Decode("failed to parse OCSPRequest", err)
	}
	if len(rest) != 0 {
		return nil, ocsperr.Decode("trailing data after OCSPRequest", nil)
	}
	if len(req.TBSRequest.RequestList) == 0 {
		return nil, ocsperr.Decode("OCSPRequest has an empty requestList", nil)
	}
	first := req.TBSRequest.RequestList[0]
	if first.ReqCert.SerialNumber == nil {
		return nil, ocsperr.Decode("CertID missing serialNumber", nil)
	}
	return &DecodedRequest{
		RequestCount: len(req.TBSRequest.RequestList),
		FirstReqCert: ReqCert{
			IssuerKeyHash: first.ReqCert.IssuerKeyHash,
			SerialNumber:  first.ReqCert.SerialNumber,
		},
	}, nil
}
