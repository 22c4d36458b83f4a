package receipt

import (
	"bytes"
	"fmt"

	"github.com/blacktop/go-receipt/pkg/der"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Payload is the decoded SET OF ReceiptAttribute, in stream order.
type Payload []Attribute

// DecodePayload decodes b, which must hold exactly one SET OF
// ReceiptAttribute. Decoding is all or nothing: any malformed attribute fails
// the whole payload.
func DecodePayload(b []byte) (Payload, error) {
	r := der.NewReader(b)

	set, err := r.ReadConstructed(asn1.SET)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if !r.Empty() {
		return nil, fmt.Errorf("%w: %d bytes after payload SET", ErrSchemaViolation, r.Len())
	}

	var p Payload
	for !set.Empty() {
		a, err := DecodeAttribute(set)
		if err != nil {
			return nil, fmt.Errorf("payload attribute %d: %w", len(p), err)
		}
		p = append(p, a)
	}

	return p, nil
}

// Find returns the first attribute with the given type.
func (p Payload) Find(typ int) (Attribute, bool) {
	for _, a := range p {
		if a.Type == typ {
			return a, true
		}
	}
	return Attribute{}, false
}

// FindAll returns every attribute with the given type, in stream order.
func (p Payload) FindAll(typ int) []Attribute {
	var out []Attribute
	for _, a := range p {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for i, a := range p {
		out[i] = Attribute{Type: a.Type, Version: a.Version, Value: bytes.Clone(a.Value)}
	}
	return out
}
