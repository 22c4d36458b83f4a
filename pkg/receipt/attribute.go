package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/blacktop/go-receipt/pkg/der"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Attribute is one typed, versioned field of a receipt payload.
//
//	ReceiptAttribute ::= SEQUENCE {
//	    type    INTEGER,
//	    version INTEGER,
//	    value   OCTET STRING
//	}
type Attribute struct {
	Type    int    `json:"type" yaml:"type" plist:"type"`
	Version int    `json:"version" yaml:"version" plist:"version"`
	Value   []byte `json:"value" yaml:"value" plist:"value"`
}

// DecodeAttribute consumes one ReceiptAttribute SEQUENCE from r.
func DecodeAttribute(r *der.Reader) (Attribute, error) {
	seq, err := r.ReadConstructed(asn1.SEQUENCE)
	if err != nil {
		return Attribute{}, schemaErr("attribute", err)
	}

	var a Attribute
	if seq.Empty() {
		return Attribute{}, missingField("type", seq)
	}
	if a.Type, err = seq.ReadInteger(); err != nil {
		return Attribute{}, schemaErr("type", err)
	}
	if seq.Empty() {
		return Attribute{}, missingField("version", seq)
	}
	if a.Version, err = seq.ReadInteger(); err != nil {
		return Attribute{}, schemaErr("version", err)
	}
	if seq.Empty() {
		return Attribute{}, missingField("value", seq)
	}
	if a.Value, err = seq.ReadOctetString(); err != nil {
		return Attribute{}, schemaErr("value", err)
	}
	if !seq.Empty() {
		return Attribute{}, fmt.Errorf("%w: %d unexpected bytes after value at offset %d", ErrSchemaViolation, seq.Len(), seq.Offset())
	}

	return a, nil
}

func missingField(field string, r *der.Reader) error {
	return fmt.Errorf("%w: missing %s at offset %d", ErrSchemaViolation, field, r.Offset())
}

// schemaErr promotes a tag mismatch to a schema violation and leaves every
// other DER error as is.
func schemaErr(field string, err error) error {
	if errors.Is(err, der.ErrUnexpectedTag) {
		return fmt.Errorf("%w: %s: %w", ErrSchemaViolation, field, err)
	}
	return fmt.Errorf("%s: %w", field, err)
}

// AsString decodes the value as a UTF8String, IA5String or PrintableString.
func (a Attribute) AsString() (string, error) {
	return der.String(a.Value)
}

// AsInt decodes the value as an INTEGER.
func (a Attribute) AsInt() (int, error) {
	return der.Integer(a.Value)
}

// AsBool decodes the value as an INTEGER flag.
func (a Attribute) AsBool() (bool, error) {
	n, err := a.AsInt()
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// AsTime decodes the value as an RFC 3339 IA5String. An empty string yields
// the zero time.
func (a Attribute) AsTime() (time.Time, error) {
	s, err := a.AsString()
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrMalformedEncoding, s, err)
	}
	return t, nil
}

// AsPayload decodes the value as a nested SET OF ReceiptAttribute.
func (a Attribute) AsPayload() (Payload, error) {
	return DecodePayload(a.Value)
}

// Describe makes a best effort at rendering the value for display: strings
// and integers are decoded, anything else is returned as nil.
func (a Attribute) Describe() any {
	r := der.NewReader(a.Value)
	tag, err := r.Peek()
	if err != nil {
		return nil
	}
	switch tag {
	case asn1.INTEGER:
		if n, err := a.AsInt(); err == nil {
			return n
		}
	case asn1.UTF8String, asn1.IA5String, asn1.PrintableString:
		if s, err := a.AsString(); err == nil {
			return s
		}
	case asn1.SET:
		if p, err := a.AsPayload(); err == nil {
			return p
		}
	}
	return nil
}
