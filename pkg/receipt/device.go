package receipt

import (
	"crypto/sha1"
	"crypto/subtle"
	"fmt"

	"github.com/google/uuid"
)

// ValidateDevice checks that the receipt was issued to the device with the
// given identifier: SHA-1(id || opaque value || bundle id) must match the
// receipt's hash attribute. On iOS id is the identifierForVendor bytes, on
// macOS the primary network interface's MAC address.
func (r *Receipt) ValidateDevice(id []byte) error {
	bundle, ok := r.payload.Find(TypeBundleID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingAttribute, TypeName(TypeBundleID))
	}
	opaque, ok := r.payload.Find(TypeOpaqueValue)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingAttribute, TypeName(TypeOpaqueValue))
	}
	hash, ok := r.payload.Find(TypeSHA1Hash)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingAttribute, TypeName(TypeSHA1Hash))
	}

	h := sha1.New()
	h.Write(id)
	h.Write(opaque.Value)
	// the raw DER value, not the decoded string
	h.Write(bundle.Value)

	if subtle.ConstantTimeCompare(h.Sum(nil), hash.Value) != 1 {
		return ErrHashMismatch
	}
	return nil
}

// ValidateUUID is ValidateDevice for an identifierForVendor UUID.
func (r *Receipt) ValidateUUID(id uuid.UUID) error {
	return r.ValidateDevice(id[:])
}
