// Package der is a small, strict DER reader for the App Store receipt grammar.
//
// It only understands what a receipt needs: definite lengths, low tag numbers,
// INTEGER, OCTET STRING, the character string types used for field values and
// constructed SET/SEQUENCE boundaries. Anything else is rejected rather than
// guessed at.
package der

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var (
	// ErrUnexpectedTag is returned when an element's tag does not match the
	// grammar position being decoded.
	ErrUnexpectedTag = errors.New("unexpected tag")
	// ErrTruncatedInput is returned when a header or a declared length runs
	// past the end of the available bytes.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrIntegerOverflow is returned when an INTEGER does not fit in an int.
	ErrIntegerOverflow = errors.New("integer overflow")
	// ErrMalformedEncoding is returned for encodings DER forbids (indefinite or
	// non-minimal lengths, empty or non-minimal INTEGERs, invalid strings).
	ErrMalformedEncoding = errors.New("malformed encoding")
)

const maxLengthBytes = 4

// Element is a single decoded TLV.
type Element struct {
	Tag     asn1.Tag
	Offset  int // offset of the identifier octet
	Content []byte
}

// Reader is a forward-only cursor over DER bytes.
type Reader struct {
	s    cryptobyte.String
	base int
	size int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{s: cryptobyte.String(b), size: len(b)}
}

// Offset returns the absolute position of the cursor.
func (r *Reader) Offset() int {
	return r.base + r.size - len(r.s)
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.s)
}

// Empty reports whether all bytes have been consumed.
func (r *Reader) Empty() bool {
	return r.s.Empty()
}

// Finish returns an error if unread bytes remain.
func (r *Reader) Finish() error {
	if !r.Empty() {
		return errorf(ErrMalformedEncoding, r.Offset(), "%d trailing bytes", r.Len())
	}
	return nil
}

// Peek returns the tag of the next element without consuming it.
func (r *Reader) Peek() (asn1.Tag, error) {
	if r.Empty() {
		return 0, errorf(ErrTruncatedInput, r.Offset(), "missing tag")
	}
	return asn1.Tag(r.s[0]), nil
}

// ReadElement decodes the next TLV header and returns its content span.
func (r *Reader) ReadElement() (Element, error) {
	off := r.Offset()

	var id uint8
	if !r.s.ReadUint8(&id) {
		return Element{}, errorf(ErrTruncatedInput, off, "missing tag")
	}
	if id&0x1f == 0x1f {
		return Element{}, errorf(ErrUnexpectedTag, off, "high tag number form is not supported")
	}

	var lb uint8
	if !r.s.ReadUint8(&lb) {
		return Element{}, errorf(ErrTruncatedInput, off, "missing length")
	}

	length := uint64(lb)
	if lb&0x80 != 0 {
		n := int(lb & 0x7f)
		switch {
		case n == 0:
			return Element{}, errorf(ErrMalformedEncoding, off, "indefinite length")
		case n > maxLengthBytes:
			return Element{}, errorf(ErrMalformedEncoding, off, "length encoded in %d bytes", n)
		}
		var lenBytes []byte
		if !r.s.ReadBytes(&lenBytes, n) {
			return Element{}, errorf(ErrTruncatedInput, off, "length needs %d bytes, %d remaining", n, r.Len())
		}
		length = 0
		for _, b := range lenBytes {
			length = length<<8 | uint64(b)
		}
		if lenBytes[0] == 0 || length < 0x80 {
			return Element{}, errorf(ErrMalformedEncoding, off, "non-minimal length encoding")
		}
	}

	if length > uint64(r.Len()) {
		return Element{}, errorf(ErrTruncatedInput, off, "declared length %d exceeds %d remaining bytes", length, r.Len())
	}

	var content []byte
	r.s.ReadBytes(&content, int(length))

	return Element{Tag: asn1.Tag(id), Offset: off, Content: content}, nil
}

func (r *Reader) expect(tag asn1.Tag) (Element, error) {
	got, err := r.Peek()
	if err != nil {
		return Element{}, err
	}
	if got != tag {
		return Element{}, errorf(ErrUnexpectedTag, r.Offset(), "expected %s, got %s", TagName(tag), TagName(got))
	}
	return r.ReadElement()
}

// ReadConstructed consumes a SET or SEQUENCE with the given tag and returns a
// Reader bounded by its content.
func (r *Reader) ReadConstructed(tag asn1.Tag) (*Reader, error) {
	if tag != tag.Constructed() {
		return nil, fmt.Errorf("der: %s is not a constructed tag", TagName(tag))
	}
	el, err := r.expect(tag)
	if err != nil {
		return nil, err
	}
	return &Reader{
		s:    cryptobyte.String(el.Content),
		base: r.Offset() - len(el.Content),
		size: len(el.Content),
	}, nil
}

// ReadInteger consumes an INTEGER.
func (r *Reader) ReadInteger() (int, error) {
	el, err := r.expect(asn1.INTEGER)
	if err != nil {
		return 0, err
	}
	return parseInt(el.Content, el.Offset)
}

// ReadOctetString consumes a primitive OCTET STRING and returns its content
// unchanged.
func (r *Reader) ReadOctetString() ([]byte, error) {
	el, err := r.expect(asn1.OCTET_STRING)
	if err != nil {
		return nil, err
	}
	return el.Content, nil
}

// ReadString consumes a UTF8String, IA5String or PrintableString.
func (r *Reader) ReadString() (string, asn1.Tag, error) {
	tag, err := r.Peek()
	if err != nil {
		return "", 0, err
	}
	switch tag {
	case asn1.UTF8String, asn1.IA5String, asn1.PrintableString:
	default:
		return "", tag, errorf(ErrUnexpectedTag, r.Offset(), "expected string, got %s", TagName(tag))
	}
	el, err := r.ReadElement()
	if err != nil {
		return "", tag, err
	}
	if tag == asn1.UTF8String {
		if !utf8.Valid(el.Content) {
			return "", tag, errorf(ErrMalformedEncoding, el.Offset, "invalid UTF-8")
		}
	} else {
		for _, c := range el.Content {
			if c >= utf8.RuneSelf {
				return "", tag, errorf(ErrMalformedEncoding, el.Offset, "non-ASCII byte 0x%02x in %s", c, TagName(tag))
			}
		}
	}
	return string(el.Content), tag, nil
}

// Integer decodes b, which must hold exactly one INTEGER.
func Integer(b []byte) (int, error) {
	r := NewReader(b)
	v, err := r.ReadInteger()
	if err != nil {
		return 0, err
	}
	return v, r.Finish()
}

// String decodes b, which must hold exactly one string element.
func String(b []byte) (string, error) {
	r := NewReader(b)
	s, _, err := r.ReadString()
	if err != nil {
		return "", err
	}
	return s, r.Finish()
}

func parseInt(b []byte, off int) (int, error) {
	switch {
	case len(b) == 0:
		return 0, errorf(ErrMalformedEncoding, off, "zero-length INTEGER")
	case len(b) > 1 && ((b[0] == 0x00 && b[1]&0x80 == 0) || (b[0] == 0xff && b[1]&0x80 != 0)):
		return 0, errorf(ErrMalformedEncoding, off, "non-minimal INTEGER")
	case len(b) > strconv.IntSize/8:
		return 0, errorf(ErrIntegerOverflow, off, "%d-byte INTEGER does not fit in %d bits", len(b), strconv.IntSize)
	}
	n := int(int8(b[0]))
	for _, c := range b[1:] {
		n = n<<8 | int(c)
	}
	return n, nil
}

// TagName returns a human readable name for the tags this package knows about.
func TagName(t asn1.Tag) string {
	switch t {
	case asn1.BOOLEAN:
		return "BOOLEAN"
	case asn1.INTEGER:
		return "INTEGER"
	case asn1.OCTET_STRING:
		return "OCTET STRING"
	case asn1.NULL:
		return "NULL"
	case asn1.OBJECT_IDENTIFIER:
		return "OBJECT IDENTIFIER"
	case asn1.UTF8String:
		return "UTF8String"
	case asn1.PrintableString:
		return "PrintableString"
	case asn1.IA5String:
		return "IA5String"
	case asn1.SEQUENCE:
		return "SEQUENCE"
	case asn1.SET:
		return "SET"
	default:
		return fmt.Sprintf("tag 0x%02x", uint8(t))
	}
}

func errorf(kind error, off int, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", kind, off, fmt.Sprintf(format, args...))
}
