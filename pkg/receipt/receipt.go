// Package receipt authenticates and decodes App Store purchase receipts.
//
// A receipt is a PKCS#7 signed-data envelope whose content is a DER encoded
// SET OF ReceiptAttribute. Parse verifies the envelope first and only then
// decodes the payload, so a Receipt value always comes from a genuine,
// well-formed receipt.
package receipt

import (
	"bytes"
	"crypto/x509"
	"fmt"

	"github.com/apex/log"
)

// Receipt is a verified, decoded receipt. It is read-only.
type Receipt struct {
	content []byte
	payload Payload
}

// Parse verifies data with v and decodes the signed payload. Every failure is
// returned as an *Error tagged with the stage that rejected the receipt.
func Parse(data []byte, v Verifier) (*Receipt, error) {
	if v == nil {
		return nil, &Error{Stage: StageVerify, Err: fmt.Errorf("%w: no verifier", ErrUntrustedSigner)}
	}

	log.WithField("size", len(data)).Debug("verifying receipt envelope")
	content, err := v.Verify(data)
	if err != nil {
		return nil, &Error{Stage: StageVerify, Err: err}
	}

	payload, err := DecodePayload(content)
	if err != nil {
		return nil, &Error{Stage: StageDecode, Err: err}
	}
	log.WithField("attributes", len(payload)).Debug("decoded receipt payload")

	return &Receipt{content: content, payload: payload}, nil
}

// ParseWithRoots is Parse with a PKCS7Verifier trusting roots.
func ParseWithRoots(data []byte, roots ...*x509.Certificate) (*Receipt, error) {
	v, err := NewVerifier(roots)
	if err != nil {
		return nil, &Error{Stage: StageVerify, Err: fmt.Errorf("%w: %w", ErrUntrustedSigner, err)}
	}
	return Parse(data, v)
}

// Attribute returns the first attribute of the given type.
func (r *Receipt) Attribute(typ int) (Attribute, bool) {
	a, ok := r.payload.Find(typ)
	a.Value = bytes.Clone(a.Value)
	return a, ok
}

// Attributes returns a copy of every top level attribute in stream order.
func (r *Receipt) Attributes() Payload {
	return r.payload.Clone()
}

// Raw returns a copy of the verified payload bytes.
func (r *Receipt) Raw() []byte {
	return append([]byte(nil), r.content...)
}

// Nested decodes every attribute of type typ as a SET OF ReceiptAttribute.
// Only types known to carry sub-records are accepted.
func (r *Receipt) Nested(typ int) ([]Payload, error) {
	if !carriesRecords(typ) {
		return nil, fmt.Errorf("receipt: attribute type %d does not carry nested records", typ)
	}
	var out []Payload
	for _, a := range r.payload.FindAll(typ) {
		p, err := a.AsPayload()
		if err != nil {
			return nil, &Error{Stage: StageDecode, Err: fmt.Errorf("%s: %w", TypeName(typ), err)}
		}
		out = append(out, p)
	}
	return out, nil
}
