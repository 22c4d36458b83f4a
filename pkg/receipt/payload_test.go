package receipt

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/blacktop/go-receipt/pkg/der"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

func TestDecodeAttribute(t *testing.T) {
	seq := func(fields ...func(*cryptobyte.Builder)) []byte {
		var b cryptobyte.Builder
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, f := range fields {
				f(b)
			}
		})
		return b.BytesOrPanic()
	}
	i := func(n int64) func(*cryptobyte.Builder) {
		return func(b *cryptobyte.Builder) { b.AddASN1Int64(n) }
	}
	o := func(v []byte) func(*cryptobyte.Builder) {
		return func(b *cryptobyte.Builder) { b.AddASN1OctetString(v) }
	}

	tests := []struct {
		name    string
		data    []byte
		want    Attribute
		wantErr error
	}{
		{
			name: "bundle id",
			data: seq(i(2), i(1), o(utf8Value("com.example.app"))),
			want: Attribute{Type: 2, Version: 1, Value: utf8Value("com.example.app")},
		},
		{
			name: "empty value",
			data: seq(i(1701), i(0), o(nil)),
			want: Attribute{Type: 1701, Version: 0, Value: []byte{}},
		},
		{
			name:    "fields reordered",
			data:    seq(i(2), o([]byte{1}), i(1)),
			wantErr: ErrSchemaViolation,
		},
		{
			name:    "value is a string",
			data:    seq(i(2), i(1), func(b *cryptobyte.Builder) { b.AddBytes(utf8Value("x")) }),
			wantErr: ErrSchemaViolation,
		},
		{
			name:    "missing value",
			data:    seq(i(2), i(1)),
			wantErr: ErrSchemaViolation,
		},
		{
			name:    "extra field",
			data:    seq(i(2), i(1), o(nil), i(0)),
			wantErr: ErrSchemaViolation,
		},
		{
			name:    "not a sequence",
			data:    utf8Value("nope"),
			wantErr: ErrSchemaViolation,
		},
		{
			name:    "oversized type",
			data:    seq(func(b *cryptobyte.Builder) { b.AddBytes(tagged(asn1.INTEGER, bytes.Repeat([]byte{0x7f}, 9))) }, i(1), o(nil)),
			wantErr: ErrIntegerOverflow,
		},
		{
			name:    "truncated",
			data:    seq(i(2), i(1), o([]byte("abc")))[:8],
			wantErr: ErrTruncatedInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAttribute(der.NewReader(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeAttribute() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeAttribute() error = %v", err)
			}
			if got.Type != tt.want.Type || got.Version != tt.want.Version || !bytes.Equal(got.Value, tt.want.Value) {
				t.Errorf("DecodeAttribute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAttributeValues(t *testing.T) {
	if s, err := (Attribute{Value: ia5Value("1.0")}).AsString(); err != nil || s != "1.0" {
		t.Errorf("AsString() = %q, %v", s, err)
	}
	if n, err := (Attribute{Value: intValue(-1)}).AsInt(); err != nil || n != -1 {
		t.Errorf("AsInt() = %d, %v", n, err)
	}
	if b, err := (Attribute{Value: intValue(1)}).AsBool(); err != nil || !b {
		t.Errorf("AsBool() = %v, %v", b, err)
	}
	if _, err := (Attribute{Value: intValue(1)}).AsString(); !errors.Is(err, ErrUnexpectedTag) {
		t.Errorf("AsString() on INTEGER error = %v, want %v", err, ErrUnexpectedTag)
	}

	ts, err := (Attribute{Value: ia5Value("2024-03-01T12:30:00Z")}).AsTime()
	if err != nil {
		t.Fatalf("AsTime() error = %v", err)
	}
	if ts.Year() != 2024 || ts.Month() != 3 || ts.Hour() != 12 {
		t.Errorf("AsTime() = %v", ts)
	}
	if ts, err := (Attribute{Value: ia5Value("")}).AsTime(); err != nil || !ts.IsZero() {
		t.Errorf("AsTime() on empty = %v, %v", ts, err)
	}
	if _, err := (Attribute{Value: ia5Value("yesterday")}).AsTime(); !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("AsTime() error = %v, want %v", err, ErrMalformedEncoding)
	}
}

func TestAttributeDescribe(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  any
	}{
		{"int", intValue(42), 42},
		{"string", utf8Value("hi"), "hi"},
		{"opaque", []byte{0xde, 0xad}, nil},
		{"nested", encodePayload(Attribute{Type: 1702, Value: utf8Value("p")}), Payload{{Type: 1702, Value: utf8Value("p")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Attribute{Value: tt.value}).Describe(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Describe() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	attrs := []Attribute{
		{Type: TypeBundleID, Version: 1, Value: utf8Value("com.example.app")},
		{Type: TypeApplicationVersion, Version: 1, Value: utf8Value("1.2")},
		{Type: 9999, Version: 3, Value: []byte{0x01, 0x02}},
		{Type: TypeBundleID, Version: 2, Value: utf8Value("dup")},
	}
	data := encodePayload(attrs...)

	got, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if len(got) != len(attrs) {
		t.Fatalf("DecodePayload() returned %d attributes, want %d", len(got), len(attrs))
	}
	for i := range attrs {
		if got[i].Type != attrs[i].Type || got[i].Version != attrs[i].Version || !bytes.Equal(got[i].Value, attrs[i].Value) {
			t.Errorf("attribute %d = %+v, want %+v", i, got[i], attrs[i])
		}
	}

	again, err := DecodePayload(data)
	if err != nil || !reflect.DeepEqual(got, again) {
		t.Errorf("DecodePayload() is not deterministic: %v", err)
	}

	if a, ok := got.Find(TypeBundleID); !ok || a.Version != 1 {
		t.Errorf("Find() = %+v, %v; want first bundle id", a, ok)
	}
	if all := got.FindAll(TypeBundleID); len(all) != 2 {
		t.Errorf("FindAll() returned %d attributes, want 2", len(all))
	}
	if _, ok := got.Find(TypeExpirationDate); ok {
		t.Error("Find() found an absent type")
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	got, err := DecodePayload(encodePayload())
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("DecodePayload() = %v, want empty", got)
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	valid := encodePayload(
		Attribute{Type: TypeBundleID, Version: 1, Value: utf8Value("com.example.app")},
		Attribute{Type: TypeApplicationVersion, Version: 1, Value: utf8Value("1.0")},
	)
	badAttr := func() []byte {
		var b cryptobyte.Builder
		b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
			b.AddBytes(encodePayload(Attribute{Type: 1, Value: nil})[2:])
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1OctetString([]byte("x"))
				b.AddASN1Int64(1)
				b.AddASN1Int64(1)
			})
		})
		return b.BytesOrPanic()
	}()

	// a well-formed SET whose content ends part way into a second element
	setWithTail := func(tail ...byte) []byte {
		one := encodePayload(Attribute{Type: TypeBundleID, Version: 1, Value: []byte{0x0c, 0x01, 'a'}})
		var b cryptobyte.Builder
		b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
			b.AddBytes(one[2:])
			b.AddBytes(tail)
		})
		return b.BytesOrPanic()
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty input", nil, ErrTruncatedInput},
		{"element overruns set", setWithTail(0x30, 0x05), ErrTruncatedInput},
		{"lone tag at end of set", setWithTail(0x30), ErrTruncatedInput},
		{"sequence instead of set", append([]byte{0x30}, valid[1:]...), ErrUnexpectedTag},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00), ErrSchemaViolation},
		{"second attribute reordered", badAttr, ErrSchemaViolation},
		{"indefinite length", []byte{0x31, 0x80, 0x00, 0x00}, ErrMalformedEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodePayload() error = %v, want %v", err, tt.wantErr)
			}
			if got != nil {
				t.Errorf("DecodePayload() returned a partial payload: %v", got)
			}
		})
	}
}

func TestDecodePayloadTruncation(t *testing.T) {
	data := encodePayload(
		Attribute{Type: TypeBundleID, Version: 1, Value: utf8Value("com.example.app")},
		Attribute{Type: TypeInAppPurchase, Version: 1, Value: encodePayload(
			Attribute{Type: TypeProductID, Version: 1, Value: utf8Value("coins")},
		)},
	)
	for n := 0; n < len(data); n++ {
		got, err := DecodePayload(data[:n])
		if err == nil {
			t.Fatalf("DecodePayload(data[:%d]) succeeded", n)
		}
		if got != nil {
			t.Fatalf("DecodePayload(data[:%d]) returned a partial payload", n)
		}
	}
}

func TestPayloadClone(t *testing.T) {
	p := Payload{{Type: 1, Value: []byte{1, 2, 3}}}
	c := p.Clone()
	c[0].Value[0] = 9
	if p[0].Value[0] != 1 {
		t.Error("Clone() shares value storage with the original")
	}
	if Payload(nil).Clone() != nil {
		t.Error("Clone() of nil payload is not nil")
	}
}
